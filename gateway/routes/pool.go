package routes

import (
	"net/http"
)

func (h *handlers) getPool(w http.ResponseWriter, _ *http.Request) {
	pool, util, err := h.protocol.PoolStats()
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	available, err := h.protocol.AvailableLiquidity()
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolView{
		TotalLiquidity:      pool.TotalLiquidity.Dec(),
		TotalBorrowed:       pool.TotalBorrowed.Dec(),
		TotalInterestEarned: pool.TotalInterestEarned.Dec(),
		AccInterestPerShare: pool.AccInterestPerShare.Dec(),
		AvailableLiquidity:  available.Dec(),
		UtilizationBps:      util,
		Paused:              h.protocol.IsPaused("pool"),
	})
}

func (h *handlers) listLenders(w http.ResponseWriter, _ *http.Request) {
	lenders, err := h.protocol.Lenders()
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lenders": lenders})
}

func (h *handlers) getLender(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	pos, err := h.protocol.Lender(addr)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLenderView(addr, pos))
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (h *handlers) deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	receipt, err := h.protocol.Deposit(r.Context(), caller, amount)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt})
}

func (h *handlers) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	interest, receipt, err := h.protocol.Withdraw(r.Context(), caller, amount)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt, Result: map[string]string{
		"amount":   amount.Dec(),
		"interest": dec(interest),
	}})
}

func (h *handlers) settleInterest(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	lender, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	earned, receipt, err := h.protocol.UpdateInterest(r.Context(), caller, lender)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt, Result: map[string]string{"earnedInterest": dec(earned)}})
}
