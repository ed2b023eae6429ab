package oracle

import (
	"strconv"

	"remitlend/core/types"
	"remitlend/crypto"
)

const (
	EventTypeVerificationRequested = "oracle.verificationRequested"
	EventTypeVerificationCompleted = "oracle.verificationCompleted"
	EventTypeVerificationFailed    = "oracle.verificationFailed"
	EventTypeMonitoringStarted     = "oracle.monitoringStarted"
	EventTypeRemittanceReported    = "oracle.remittanceReported"
	EventTypeMissedPaymentReported = "oracle.missedPaymentReported"
	EventTypeOperatorAdded         = "oracle.operatorAdded"
	EventTypeOperatorRemoved       = "oracle.operatorRemoved"
)

func newVerificationRequestedEvent(req *VerificationRequest) *types.Event {
	evt := types.NewEvent(EventTypeVerificationRequested)
	evt.Attributes["user"] = req.User.String()
	evt.Attributes["provider"] = req.Provider
	return evt
}

func newVerificationCompletedEvent(req *VerificationRequest) *types.Event {
	evt := types.NewEvent(EventTypeVerificationCompleted)
	evt.Attributes["user"] = req.User.String()
	evt.Attributes["reliabilityScore"] = strconv.FormatUint(req.ReliabilityScore, 10)
	evt.Attributes["tokenId"] = strconv.FormatUint(req.TokenID, 10)
	return evt
}

func newVerificationFailedEvent(req *VerificationRequest) *types.Event {
	evt := types.NewEvent(EventTypeVerificationFailed)
	evt.Attributes["user"] = req.User.String()
	if req.Reason != "" {
		evt.Attributes["reason"] = req.Reason
	}
	return evt
}

func newMonitoringStartedEvent(loanID uint64) *types.Event {
	evt := types.NewEvent(EventTypeMonitoringStarted)
	evt.Attributes["loanId"] = strconv.FormatUint(loanID, 10)
	return evt
}

func newRemittanceReportedEvent(user crypto.Address, report *RemittanceReport) *types.Event {
	evt := types.NewEvent(EventTypeRemittanceReported)
	evt.Attributes["loanId"] = strconv.FormatUint(report.LoanID, 10)
	evt.Attributes["tokenId"] = strconv.FormatUint(report.TokenID, 10)
	evt.Attributes["user"] = user.String()
	evt.Attributes["amount"] = report.Amount.Dec()
	evt.Attributes["applied"] = report.Applied.Dec()
	evt.Attributes["leftover"] = report.Leftover.Dec()
	return evt
}

func newMissedPaymentReportedEvent(loanID, tokenID, missed uint64) *types.Event {
	evt := types.NewEvent(EventTypeMissedPaymentReported)
	evt.Attributes["loanId"] = strconv.FormatUint(loanID, 10)
	evt.Attributes["tokenId"] = strconv.FormatUint(tokenID, 10)
	evt.Attributes["missedCount"] = strconv.FormatUint(missed, 10)
	return evt
}

func newOperatorEvent(eventType string, op crypto.Address) *types.Event {
	evt := types.NewEvent(eventType)
	evt.Attributes["operator"] = op.String()
	return evt
}
