package lending

import (
	"github.com/holiman/uint256"

	"remitlend/crypto"
)

// PoolConfig is written once by Initialize.
type PoolConfig struct {
	// Admin is the initialising caller. A non-zero admin marks the pool as
	// initialised.
	Admin crypto.Address
	// LoanManager is the only caller allowed to borrow and repay.
	LoanManager crypto.Address
	// Asset identifies the fungible asset held by the pool.
	Asset crypto.Address
	// MaxUtilizationBps is the advertised utilisation ceiling. It is not
	// enforced by Borrow.
	MaxUtilizationBps uint64
}

// PoolState captures the global accounting state of the liquidity pool.
type PoolState struct {
	// TotalLiquidity is the sum of all lender deposits.
	TotalLiquidity uint256.Int
	// TotalBorrowed is the principal currently lent out.
	TotalBorrowed uint256.Int
	// TotalInterestEarned accumulates every interest payment ever repaid.
	TotalInterestEarned uint256.Int
	// AccInterestPerShare is the interest earned per deposited unit, scaled
	// by 1e9. It never decreases.
	AccInterestPerShare uint256.Int
}

// LenderPosition maintains the pool position of an individual lender.
type LenderPosition struct {
	Address          crypto.Address
	DepositAmount    uint256.Int
	DepositTimestamp uint64
	// EarnedInterest is settled interest not yet paid out.
	EarnedInterest uint256.Int
	// SharePercentage is the lender's share of the pool in basis points as of
	// the last deposit or withdrawal. Settlement never reads it.
	SharePercentage uint64
	// LastAccInterestPerShare is the accumulator value at the last
	// settlement.
	LastAccInterestPerShare uint256.Int
}

// Clone returns a deep copy of the position.
func (p *LenderPosition) Clone() *LenderPosition {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// Clone returns a deep copy of the pool state.
func (s *PoolState) Clone() *PoolState {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
