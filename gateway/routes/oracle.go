package routes

import (
	"net/http"

	"remitlend/native/oracle"
)

type verificationRequest struct {
	Provider  string `json:"provider"`
	AccountID string `json:"accountId"`
}

type attestationRequest struct {
	MonthlyAmount string `json:"monthlyAmount"`
	HistoryMonths uint64 `json:"historyMonths"`
	TotalSent     string `json:"totalSent"`
	PaidCount     uint64 `json:"paidCount"`
	TotalCount    uint64 `json:"totalCount"`
}

type rejectionRequest struct {
	Reason string `json:"reason"`
}

type remittanceRequest struct {
	User    string `json:"user"`
	TokenID uint64 `json:"tokenId"`
	Amount  string `json:"amount"`
	LoanID  uint64 `json:"loanId"`
}

type missedPaymentRequest struct {
	LoanID  uint64 `json:"loanId"`
	TokenID uint64 `json:"tokenId"`
}

type operatorRequest struct {
	Address string `json:"address"`
}

func (h *handlers) getVerification(w http.ResponseWriter, r *http.Request) {
	user, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	req, err := h.protocol.Verification(user)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newVerificationView(req))
}

func (h *handlers) requestVerification(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req verificationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	receipt, err := h.protocol.RequestVerification(r.Context(), caller, req.Provider, req.AccountID)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, writeResult{Receipt: receipt})
}

func (h *handlers) submitVerification(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	user, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var req attestationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	monthly, ok := parseAmount(w, req.MonthlyAmount)
	if !ok {
		return
	}
	total, ok := parseAmount(w, req.TotalSent)
	if !ok {
		return
	}
	tokenID, receipt, err := h.protocol.SubmitVerification(r.Context(), caller, user, oracle.Attestation{
		MonthlyAmount: monthly,
		HistoryMonths: req.HistoryMonths,
		TotalSent:     total,
		PaidCount:     req.PaidCount,
		TotalCount:    req.TotalCount,
	})
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt, Result: map[string]uint64{"tokenId": tokenID}})
}

func (h *handlers) rejectVerification(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	user, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var req rejectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	receipt, err := h.protocol.RejectVerification(r.Context(), caller, user, req.Reason)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt})
}

func (h *handlers) reportRemittance(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req remittanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	user, ok := parseAddress(w, req.User, "user")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	report, receipt, err := h.protocol.ReportRemittance(r.Context(), caller, user, req.TokenID, amount, req.LoanID)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt, Result: remittanceView{
		LoanID:   report.LoanID,
		TokenID:  report.TokenID,
		Amount:   dec(report.Amount),
		Applied:  dec(report.Applied),
		Leftover: dec(report.Leftover),
	}})
}

func (h *handlers) reportMissedPayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req missedPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	loan, receipt, err := h.protocol.ReportMissedPayment(r.Context(), caller, req.LoanID, req.TokenID)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt, Result: newLoanView(loan)})
}

func (h *handlers) getMonitoring(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUint(w, r, "loanId")
	if !ok {
		return
	}
	mon, err := h.protocol.Monitoring(loanID)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	if mon == nil {
		writeError(w, http.StatusNotFound, "loan_not_monitored", "loan not monitored")
		return
	}
	writeJSON(w, http.StatusOK, monitoringView{
		LoanID:              mon.LoanID,
		StartedAt:           mon.StartedAt,
		Reports:             mon.Reports,
		UnappliedRemittance: mon.UnappliedRemittance.Dec(),
	})
}

func (h *handlers) listOperators(w http.ResponseWriter, _ *http.Request) {
	ops, err := h.protocol.Operators()
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"operators": ops})
}

func (h *handlers) addOperator(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	op, ok := parseAddress(w, req.Address, "address")
	if !ok {
		return
	}
	receipt, err := h.protocol.AddOperator(r.Context(), caller, op)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt})
}

func (h *handlers) removeOperator(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	op, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	receipt, err := h.protocol.RemoveOperator(r.Context(), caller, op)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt})
}
