package routes

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"remitlend/core"
	"remitlend/core/events"
	"remitlend/indexer"
)

// streamMessage is one frame on /ws/events. Backlog frames carry a single
// indexed event; live frames carry a whole receipt.
type streamMessage struct {
	Kind    string         `json:"kind"`
	Event   *indexer.Event `json:"event,omitempty"`
	Receipt *core.Receipt  `json:"receipt,omitempty"`
}

func (h *handlers) eventFilter(w http.ResponseWriter, r *http.Request) (indexer.Filter, bool) {
	q := r.URL.Query()
	f := indexer.Filter{Type: strings.TrimSpace(q.Get("type"))}
	var err error
	if f.LoanID, err = queryUint(r, "loanId"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return f, false
	}
	if f.TokenID, err = queryUint(r, "tokenId"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return f, false
	}
	after, err := queryUint(r, "after")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return f, false
	}
	if after != nil {
		f.AfterSequence = *after
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return f, false
		}
		f.Limit = limit
	}
	return f, true
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer_disabled", "event history is not enabled")
		return
	}
	f, ok := h.eventFilter(w, r)
	if !ok {
		return
	}
	evts, err := h.index.Events(r.Context(), f)
	if err != nil {
		h.logger.Error("query events", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal", "event query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": evts})
}

// streamEvents replays indexed events after ?after= (when an index is
// configured) and then forwards live receipts. The filter parameters of
// /v1/events apply; a live receipt is forwarded when any of its events match.
func (h *handlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	f, ok := h.eventFilter(w, r)
	if !ok {
		return
	}
	// Subscribe before the backlog query so nothing committed in between is
	// lost. Receipts already covered by the backlog are skipped below.
	live, cancel := h.protocol.Bus().Subscribe(h.stream.Buffer)
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.stream.OriginPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())

	if err := h.pumpEvents(ctx, conn, live, f); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			h.logger.Debug("event stream ended", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *handlers) pumpEvents(ctx context.Context, conn *websocket.Conn, live <-chan events.Event, f indexer.Filter) error {
	last := f.AfterSequence
	if h.index != nil && f.AfterSequence > 0 {
		for {
			page, err := h.index.Events(ctx, f)
			if err != nil {
				return err
			}
			for i := range page {
				if err := h.send(ctx, conn, streamMessage{Kind: "event", Event: &page[i]}); err != nil {
					return err
				}
				last = page[i].Sequence
			}
			if len(page) == 0 || (f.Limit > 0 && len(page) < f.Limit) {
				break
			}
			f.AfterSequence = last
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-live:
			if !ok {
				return nil
			}
			receipt, isReceipt := evt.(*core.Receipt)
			if !isReceipt || receipt.Sequence <= last || !receiptMatches(receipt, f) {
				continue
			}
			if err := h.send(ctx, conn, streamMessage{Kind: "receipt", Receipt: receipt}); err != nil {
				return err
			}
		}
	}
}

func (h *handlers) send(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, h.stream.WriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

func receiptMatches(receipt *core.Receipt, f indexer.Filter) bool {
	for _, evt := range receipt.Events {
		if f.Type != "" && evt.Type != f.Type {
			continue
		}
		if f.LoanID != nil && evt.Attributes["loanId"] != strconv.FormatUint(*f.LoanID, 10) {
			continue
		}
		if f.TokenID != nil && evt.Attributes["tokenId"] != strconv.FormatUint(*f.TokenID, 10) {
			continue
		}
		return true
	}
	return f.Type == "" && f.LoanID == nil && f.TokenID == nil
}
