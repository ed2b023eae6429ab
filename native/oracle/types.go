package oracle

import (
	"github.com/holiman/uint256"

	"remitlend/crypto"
)

// VerificationStatus is the state of a user's verification request.
type VerificationStatus uint8

const (
	VerificationPending VerificationStatus = iota
	VerificationVerified
	VerificationFailed
)

func (s VerificationStatus) String() string {
	switch s {
	case VerificationPending:
		return "pending"
	case VerificationVerified:
		return "verified"
	case VerificationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config is written once by Initialize.
type Config struct {
	Admin       crypto.Address
	LoanManager crypto.Address
}

// VerificationRequest is the live request of a user. A user has at most one.
type VerificationRequest struct {
	User             crypto.Address
	Provider         string
	AccountID        string
	RequestTimestamp uint64
	Status           VerificationStatus
	ReliabilityScore uint64
	TokenID          uint64
	Reason           string
}

// Attestation is the off-chain verified remittance history an operator
// submits for a user.
type Attestation struct {
	MonthlyAmount *uint256.Int
	HistoryMonths uint64
	TotalSent     *uint256.Int
	PaidCount     uint64
	TotalCount    uint64
}

// Monitoring tracks a loan enrolled for remittance driven repayment.
type Monitoring struct {
	LoanID    uint64
	StartedAt uint64
	Reports   uint64
	// UnappliedRemittance totals reported remittance that exceeded the
	// scheduled payment. It was never taken into custody.
	UnappliedRemittance uint256.Int
}

// RemittanceReport is the outcome of ReportRemittance.
type RemittanceReport struct {
	LoanID   uint64
	TokenID  uint64
	Amount   *uint256.Int
	Applied  *uint256.Int
	Leftover *uint256.Int
}
