package collateral

import (
	"github.com/holiman/uint256"

	"remitlend/crypto"
)

// Config names the components allowed to drive the registry.
type Config struct {
	Admin       crypto.Address
	Minter      crypto.Address
	LoanManager crypto.Address
	Oracle      crypto.Address
}

// Token is a collateral record backed by a verified remittance history.
type Token struct {
	ID               uint64
	Owner            crypto.Address
	MonthlyAmount    uint256.Int
	ReliabilityScore uint64
	HistoryMonths    uint64
	TotalSent        uint256.Int
	Active           bool
	Staked           bool
	// LoanID is the loan the token is bound to. It outlives Staked when the
	// oracle releases the stake on a missed payment.
	LoanID           uint64
	MintedAt         uint64
	UpdatedAt        uint64
}

// Remittance is the view of a token consumed by the loan manager.
type Remittance struct {
	Owner            crypto.Address
	MonthlyAmount    *uint256.Int
	ReliabilityScore uint64
	HistoryMonths    uint64
	Active           bool
	Staked           bool
	LoanID           uint64
}

// MintRequest carries the attested remittance metadata of a new token.
type MintRequest struct {
	Owner            crypto.Address
	MonthlyAmount    *uint256.Int
	ReliabilityScore uint64
	HistoryMonths    uint64
	TotalSent        *uint256.Int
}

func (t *Token) remittance() *Remittance {
	return &Remittance{
		Owner:            t.Owner,
		MonthlyAmount:    new(uint256.Int).Set(&t.MonthlyAmount),
		ReliabilityScore: t.ReliabilityScore,
		HistoryMonths:    t.HistoryMonths,
		Active:           t.Active,
		Staked:           t.Staked,
		LoanID:           t.LoanID,
	}
}
