package routes

import "net/http"

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type approvalRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	balance, err := h.protocol.Balance(addr)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": addr, "balance": balance.Dec()})
}

func (h *handlers) getAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := pathAddress(w, r, "spender")
	if !ok {
		return
	}
	allowance, err := h.protocol.Allowance(owner, spender)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"owner": owner, "spender": spender, "allowance": allowance.Dec()})
}

func (h *handlers) mint(w http.ResponseWriter, r *http.Request) {
	h.moveAsset(w, r, true)
}

func (h *handlers) transfer(w http.ResponseWriter, r *http.Request) {
	h.moveAsset(w, r, false)
}

func (h *handlers) moveAsset(w http.ResponseWriter, r *http.Request, mint bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	to, ok := parseAddress(w, req.To, "to")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	call := h.protocol.Transfer
	if mint {
		call = h.protocol.MintAsset
	}
	receipt, err := call(r.Context(), caller, to, amount)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt})
}

func (h *handlers) approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req approvalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	spender, ok := parseAddress(w, req.Spender, "spender")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	receipt, err := h.protocol.Approve(r.Context(), caller, spender, amount)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt})
}
