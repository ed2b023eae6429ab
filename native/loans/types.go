package loans

import (
	"github.com/holiman/uint256"

	"remitlend/crypto"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus uint8

const (
	LoanStatusPending LoanStatus = iota
	LoanStatusActive
	LoanStatusRepaid
	LoanStatusDefaulted
)

func (s LoanStatus) String() string {
	switch s {
	case LoanStatusPending:
		return "pending"
	case LoanStatusActive:
		return "active"
	case LoanStatusRepaid:
		return "repaid"
	case LoanStatusDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s LoanStatus) Terminal() bool {
	return s == LoanStatusRepaid || s == LoanStatusDefaulted
}

// Config is written once by Initialize.
type Config struct {
	Admin  crypto.Address
	Oracle crypto.Address
}

// Loan is a single loan record.
type Loan struct {
	ID             uint64
	Borrower       crypto.Address
	CollateralID   uint64
	Amount         uint256.Int
	Outstanding    uint256.Int
	TotalRepaid    uint256.Int
	InterestRate   uint64
	DurationMonths uint64
	MonthlyPayment uint256.Int
	StartTimestamp uint64
	NextPaymentDue uint64
	Status         LoanStatus
	PaymentsMade   uint64
	PaymentsMissed uint64
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	out := *l
	return &out
}

// Payment describes how an accepted payment was applied.
type Payment struct {
	LoanID      uint64
	Payer       crypto.Address
	Requested   *uint256.Int
	Paid        *uint256.Int
	Interest    *uint256.Int
	Principal   *uint256.Int
	Outstanding *uint256.Int
	Status      LoanStatus
}
