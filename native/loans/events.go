package loans

import (
	"strconv"

	"remitlend/core/types"
)

const (
	EventTypeRequested     = "loans.requested"
	EventTypeApproved      = "loans.approved"
	EventTypePaymentMade   = "loans.paymentMade"
	EventTypePaymentMissed = "loans.paymentMissed"
	EventTypeRepaid        = "loans.repaid"
	EventTypeDefaulted     = "loans.defaulted"
)

func loanEvent(eventType string, loan *Loan) *types.Event {
	evt := types.NewEvent(eventType)
	evt.Attributes["loanId"] = strconv.FormatUint(loan.ID, 10)
	return evt
}

func newRequestedEvent(loan *Loan) *types.Event {
	evt := loanEvent(EventTypeRequested, loan)
	evt.Attributes["borrower"] = loan.Borrower.String()
	evt.Attributes["collateralId"] = strconv.FormatUint(loan.CollateralID, 10)
	evt.Attributes["amount"] = loan.Amount.Dec()
	evt.Attributes["interestRateBps"] = strconv.FormatUint(loan.InterestRate, 10)
	evt.Attributes["durationMonths"] = strconv.FormatUint(loan.DurationMonths, 10)
	evt.Attributes["monthlyPayment"] = loan.MonthlyPayment.Dec()
	return evt
}

func newApprovedEvent(loan *Loan) *types.Event {
	evt := loanEvent(EventTypeApproved, loan)
	evt.Attributes["borrower"] = loan.Borrower.String()
	evt.Attributes["amount"] = loan.Amount.Dec()
	return evt
}

// newPaymentEvent reports the gross requested amount alongside the split.
func newPaymentEvent(p *Payment) *types.Event {
	evt := types.NewEvent(EventTypePaymentMade)
	evt.Attributes["loanId"] = strconv.FormatUint(p.LoanID, 10)
	evt.Attributes["payer"] = p.Payer.String()
	evt.Attributes["amount"] = p.Requested.Dec()
	evt.Attributes["paid"] = p.Paid.Dec()
	evt.Attributes["interest"] = p.Interest.Dec()
	evt.Attributes["principal"] = p.Principal.Dec()
	evt.Attributes["outstanding"] = p.Outstanding.Dec()
	return evt
}

func newPaymentMissedEvent(loan *Loan) *types.Event {
	evt := loanEvent(EventTypePaymentMissed, loan)
	evt.Attributes["missedCount"] = strconv.FormatUint(loan.PaymentsMissed, 10)
	return evt
}

func newStatusEvent(eventType string, loan *Loan) *types.Event {
	evt := loanEvent(eventType, loan)
	evt.Attributes["borrower"] = loan.Borrower.String()
	evt.Attributes["collateralId"] = strconv.FormatUint(loan.CollateralID, 10)
	return evt
}
