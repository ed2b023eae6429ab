package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/holiman/uint256"
)

type stubPauseView map[string]bool

func (s stubPauseView) IsPaused(module string) bool { return s[module] }

func TestGuardHonoursPauses(t *testing.T) {
	if err := Guard(nil, "pool"); err != nil {
		t.Fatalf("nil pause view must not block: %v", err)
	}
	if err := Guard(stubPauseView{"pool": true}, "pool"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(stubPauseView{"pool": true}, "loans"); err != nil {
		t.Fatalf("unexpected pause for other module: %v", err)
	}
}

func TestReentrancyGuard(t *testing.T) {
	var g ReentrancyGuard
	release, err := g.Enter()
	if err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if _, err := g.Enter(); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	release()
	if g.Entered() {
		t.Fatalf("guard should be released")
	}
	if _, err := g.Enter(); err != nil {
		t.Fatalf("enter after release: %v", err)
	}
}

func TestReasonClassifiesErrors(t *testing.T) {
	if got := Reason(fmt.Errorf("wrapped: %w", ErrOverflow)); got != "overflow" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := Reason(Invariant("total_borrowed %d", 1)); got != "invariant_violation" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := Reason(errors.New("disk full")); got != "internal" {
		t.Fatalf("unexpected reason %q", got)
	}
	if IsRejection(Invariant("x")) {
		t.Fatalf("invariant violation must not be a rejection")
	}
}

func TestCheckedArithmetic(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	if _, err := CheckedAdd(max, uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := CheckedMul(max, uint256.NewInt(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := CheckedSub(uint256.NewInt(1), uint256.NewInt(2), "total"); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	got, err := MulDiv(max, uint256.NewInt(2), uint256.NewInt(4))
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	want := new(uint256.Int).Rsh(max, 1)
	if !got.Eq(want) {
		t.Fatalf("muldiv mismatch: got %s want %s", got.Dec(), want.Dec())
	}
	if SaturatingSub(uint256.NewInt(3), uint256.NewInt(5)).Sign() != 0 {
		t.Fatalf("expected saturating sub to clamp at zero")
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 1500 ")
	if err != nil || v.Uint64() != 1500 {
		t.Fatalf("unexpected parse result %v err=%v", v, err)
	}
	for _, bad := range []string{"", "-1", "abc", "1.5"} {
		if _, err := ParseAmount(bad); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected invalid amount for %q, got %v", bad, err)
		}
	}
}
