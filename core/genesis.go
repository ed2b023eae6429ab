package core

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"remitlend/crypto"
	"remitlend/native/lending"
)

// Allocation seeds an initial asset balance.
type Allocation struct {
	Address crypto.Address
	Amount  *uint256.Int
}

// Genesis is the one-time initialisation payload. The initialising caller
// becomes admin of every component.
type Genesis struct {
	AssetSymbol       string
	AssetDecimals     uint8
	MaxUtilizationBps uint64
	Operators         []crypto.Address
	Allocations       []Allocation
}

// DefaultGenesis returns a genesis with a six decimal USDC style asset.
func DefaultGenesis() Genesis {
	return Genesis{
		AssetSymbol:       "USDC",
		AssetDecimals:     6,
		MaxUtilizationBps: lending.DefaultMaxUtilizationBps,
	}
}

// Validate checks the payload before any state is written.
func (g Genesis) Validate() error {
	if strings.TrimSpace(g.AssetSymbol) == "" {
		return fmt.Errorf("genesis: asset symbol required")
	}
	if g.MaxUtilizationBps > 10_000 {
		return fmt.Errorf("genesis: max utilization %d exceeds 10000 bps", g.MaxUtilizationBps)
	}
	for i, alloc := range g.Allocations {
		if alloc.Address.IsZero() {
			return fmt.Errorf("genesis: allocation %d has no address", i)
		}
		if alloc.Amount == nil || alloc.Amount.IsZero() {
			return fmt.Errorf("genesis: allocation %d has no amount", i)
		}
	}
	for i, op := range g.Operators {
		if op.IsZero() {
			return fmt.Errorf("genesis: operator %d is the zero address", i)
		}
	}
	return nil
}

// Component addresses. They have no keys, so only the protocol itself can act
// as them.
var (
	AssetAddress       = crypto.ModuleAddress("bank")
	CollateralAddress  = crypto.ModuleAddress("collateral")
	PoolAddress        = crypto.ModuleAddress("pool")
	LoanManagerAddress = crypto.ModuleAddress("loans")
	OracleAddress      = crypto.ModuleAddress("oracle")
)
