package common

import (
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow      = Reject("overflow", "amount overflow")
	ErrInvalidAmount = Reject("invalid_amount", "invalid amount")
)

// BasisPoints is the denominator for rates and percentages.
const BasisPoints = 10_000

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// CheckedMul returns a*b or ErrOverflow.
func CheckedMul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// CheckedSub returns a-b. Going below zero means a ledger total is out of sync
// with its components, which is an invariant violation rather than bad input.
func CheckedSub(a, b *uint256.Int, what string) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, Invariant("%s underflow: %s - %s", what, a.Dec(), b.Dec())
	}
	return out, nil
}

// MulDiv returns a*b/d truncated toward zero. The product is computed at full
// width so only a quotient above 2^256 overflows.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, Invariant("division by zero")
	}
	out, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// SaturatingSub returns a-b or zero when b exceeds a.
func SaturatingSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return Zero()
	}
	return new(uint256.Int).Sub(a, b)
}

// ParseAmount parses a base-10 amount string.
func ParseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrInvalidAmount
	}
	out, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	return out, nil
}
