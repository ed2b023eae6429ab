package routes

import (
	"net/http"
	"strings"
)

type loanRequest struct {
	CollateralID   uint64 `json:"collateralId"`
	Amount         string `json:"amount"`
	DurationMonths uint64 `json:"durationMonths"`
}

func (h *handlers) listLoans(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("borrower"))
	if raw == "" {
		count, err := h.protocol.LoanCount()
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
		return
	}
	borrower, ok := parseAddress(w, raw, "borrower")
	if !ok {
		return
	}
	ids, err := h.protocol.LoansOf(borrower)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	views := make([]loanView, 0, len(ids))
	for _, id := range ids {
		loan, err := h.protocol.Loan(id)
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		views = append(views, newLoanView(loan))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": views})
}

func (h *handlers) getLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	loan, err := h.protocol.Loan(id)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(loan))
}

func (h *handlers) requestLoan(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req loanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	id, receipt, err := h.protocol.RequestLoan(r.Context(), caller, req.CollateralID, amount, req.DurationMonths)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, writeResult{Receipt: receipt, Result: map[string]uint64{"loanId": id}})
}

func (h *handlers) approveLoan(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.protocol.ApproveLoan(r.Context(), caller, id)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt})
}

func (h *handlers) makePayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
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
	payment, receipt, err := h.protocol.MakePayment(r.Context(), caller, id, amount)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt, Result: newPaymentView(payment)})
}
