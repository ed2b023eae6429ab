package routes

import (
	"github.com/holiman/uint256"

	"remitlend/core"
	"remitlend/crypto"
	"remitlend/native/collateral"
	"remitlend/native/lending"
	"remitlend/native/loans"
	"remitlend/native/oracle"
)

// Amounts are rendered as base-10 strings; they do not fit a JSON number.

type poolView struct {
	TotalLiquidity      string `json:"totalLiquidity"`
	TotalBorrowed       string `json:"totalBorrowed"`
	TotalInterestEarned string `json:"totalInterestEarned"`
	AccInterestPerShare string `json:"accInterestPerShare"`
	AvailableLiquidity  string `json:"availableLiquidity"`
	UtilizationBps      uint64 `json:"utilizationBps"`
	Paused              bool   `json:"paused"`
}

type lenderView struct {
	Address          crypto.Address `json:"address"`
	Deposit          string         `json:"deposit"`
	DepositTimestamp uint64         `json:"depositTimestamp"`
	EarnedInterest   string         `json:"earnedInterest"`
	ShareBps         uint64         `json:"shareBps"`
}

func newLenderView(addr crypto.Address, pos *lending.LenderPosition) lenderView {
	return lenderView{
		Address:          addr,
		Deposit:          pos.DepositAmount.Dec(),
		DepositTimestamp: pos.DepositTimestamp,
		EarnedInterest:   pos.EarnedInterest.Dec(),
		ShareBps:         pos.SharePercentage,
	}
}

type loanView struct {
	ID             uint64         `json:"id"`
	Borrower       crypto.Address `json:"borrower"`
	CollateralID   uint64         `json:"collateralId"`
	Amount         string         `json:"amount"`
	Outstanding    string         `json:"outstanding"`
	TotalRepaid    string         `json:"totalRepaid"`
	InterestRate   uint64         `json:"interestRateBps"`
	DurationMonths uint64         `json:"durationMonths"`
	MonthlyPayment string         `json:"monthlyPayment"`
	StartTimestamp uint64         `json:"startTimestamp"`
	NextPaymentDue uint64         `json:"nextPaymentDue"`
	Status         string         `json:"status"`
	PaymentsMade   uint64         `json:"paymentsMade"`
	PaymentsMissed uint64         `json:"paymentsMissed"`
}

func newLoanView(l *loans.Loan) loanView {
	return loanView{
		ID:             l.ID,
		Borrower:       l.Borrower,
		CollateralID:   l.CollateralID,
		Amount:         l.Amount.Dec(),
		Outstanding:    l.Outstanding.Dec(),
		TotalRepaid:    l.TotalRepaid.Dec(),
		InterestRate:   l.InterestRate,
		DurationMonths: l.DurationMonths,
		MonthlyPayment: l.MonthlyPayment.Dec(),
		StartTimestamp: l.StartTimestamp,
		NextPaymentDue: l.NextPaymentDue,
		Status:         l.Status.String(),
		PaymentsMade:   l.PaymentsMade,
		PaymentsMissed: l.PaymentsMissed,
	}
}

type paymentView struct {
	LoanID      uint64 `json:"loanId"`
	Requested   string `json:"requested"`
	Paid        string `json:"paid"`
	Interest    string `json:"interest"`
	Principal   string `json:"principal"`
	Outstanding string `json:"outstanding"`
	Status      string `json:"status"`
}

func newPaymentView(p *loans.Payment) paymentView {
	return paymentView{
		LoanID:      p.LoanID,
		Requested:   dec(p.Requested),
		Paid:        dec(p.Paid),
		Interest:    dec(p.Interest),
		Principal:   dec(p.Principal),
		Outstanding: dec(p.Outstanding),
		Status:      p.Status.String(),
	}
}

type tokenView struct {
	ID               uint64         `json:"id"`
	Owner            crypto.Address `json:"owner"`
	MonthlyAmount    string         `json:"monthlyAmount"`
	ReliabilityScore uint64         `json:"reliabilityScore"`
	HistoryMonths    uint64         `json:"historyMonths"`
	TotalSent        string         `json:"totalSent"`
	Active           bool           `json:"active"`
	Staked           bool           `json:"staked"`
	LoanID           uint64         `json:"loanId,omitempty"`
	MintedAt         uint64         `json:"mintedAt"`
	UpdatedAt        uint64         `json:"updatedAt"`
}

func newTokenView(t *collateral.Token) tokenView {
	return tokenView{
		ID:               t.ID,
		Owner:            t.Owner,
		MonthlyAmount:    t.MonthlyAmount.Dec(),
		ReliabilityScore: t.ReliabilityScore,
		HistoryMonths:    t.HistoryMonths,
		TotalSent:        t.TotalSent.Dec(),
		Active:           t.Active,
		Staked:           t.Staked,
		LoanID:           t.LoanID,
		MintedAt:         t.MintedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

type verificationView struct {
	User             crypto.Address `json:"user"`
	Provider         string         `json:"provider"`
	AccountID        string         `json:"accountId"`
	RequestTimestamp uint64         `json:"requestTimestamp"`
	Status           string         `json:"status"`
	ReliabilityScore uint64         `json:"reliabilityScore"`
	TokenID          uint64         `json:"tokenId,omitempty"`
	Reason           string         `json:"reason,omitempty"`
}

func newVerificationView(v *oracle.VerificationRequest) verificationView {
	return verificationView{
		User:             v.User,
		Provider:         v.Provider,
		AccountID:        v.AccountID,
		RequestTimestamp: v.RequestTimestamp,
		Status:           v.Status.String(),
		ReliabilityScore: v.ReliabilityScore,
		TokenID:          v.TokenID,
		Reason:           v.Reason,
	}
}

type monitoringView struct {
	LoanID              uint64 `json:"loanId"`
	StartedAt           uint64 `json:"startedAt"`
	Reports             uint64 `json:"reports"`
	UnappliedRemittance string `json:"unappliedRemittance"`
}

type remittanceView struct {
	LoanID   uint64 `json:"loanId"`
	TokenID  uint64 `json:"tokenId"`
	Amount   string `json:"amount"`
	Applied  string `json:"applied"`
	Leftover string `json:"leftover"`
}

// writeResult is the body of every successful write: the sealed receipt plus
// an operation specific result.
type writeResult struct {
	Receipt *core.Receipt `json:"receipt"`
	Result  interface{}   `json:"result,omitempty"`
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
