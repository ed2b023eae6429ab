package routes

import (
	"net/http"
	"strings"
)

func (h *handlers) listCollateral(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAddress(w, strings.TrimSpace(r.URL.Query().Get("owner")), "owner")
	if !ok {
		return
	}
	ids, err := h.protocol.CollateralOf(owner)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	views := make([]tokenView, 0, len(ids))
	for _, id := range ids {
		token, err := h.protocol.Collateral(id)
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		views = append(views, newTokenView(token))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": views})
}

func (h *handlers) getCollateral(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	token, err := h.protocol.Collateral(id)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenView(token))
}

type collateralTransferRequest struct {
	To string `json:"to"`
}

func (h *handlers) transferCollateral(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var req collateralTransferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	to, ok := parseAddress(w, req.To, "to")
	if !ok {
		return
	}
	receipt, err := h.protocol.TransferCollateral(r.Context(), caller, to, id)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt})
}
