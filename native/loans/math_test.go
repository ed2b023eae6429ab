package loans

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestInterestRateTiers(t *testing.T) {
	cases := []struct {
		score uint64
		want  uint64
	}{
		{95, 1500}, {90, 1500}, {89, 2000}, {85, 2000}, {80, 2000},
		{79, 3000}, {75, 3000}, {70, 3000}, {69, 4000}, {10, 4000},
		{100, 4000}, {195, 1500},
	}
	for _, tc := range cases {
		if got := InterestRateForScore(tc.score); got != tc.want {
			t.Fatalf("score %d: got %d want %d", tc.score, got, tc.want)
		}
	}
}

func TestMonthlyPayment(t *testing.T) {
	got, err := MonthlyPayment(uint256.NewInt(12_000), 1500, 12)
	if err != nil {
		t.Fatalf("monthly payment: %v", err)
	}
	// 12000 + 12000*1500*12/120000 = 13800, /12 = 1150.
	if got.Uint64() != 1150 {
		t.Fatalf("monthly = %s, want 1150", got.Dec())
	}
	total, err := MonthlyPayment(uint256.NewInt(1000), 4000, 0)
	if err != nil {
		t.Fatalf("monthly payment: %v", err)
	}
	if total.Uint64() != 1000 {
		t.Fatalf("zero duration = %s, want the principal", total.Dec())
	}
	truncated, err := MonthlyPayment(uint256.NewInt(1000), 2000, 7)
	if err != nil {
		t.Fatalf("monthly payment: %v", err)
	}
	// interest 1000*2000*7/120000 = 116, (1000+116)/7 = 159.
	if truncated.Uint64() != 159 {
		t.Fatalf("monthly = %s, want 159", truncated.Dec())
	}
}

func TestInterestPortionTruncatesMonthlyRate(t *testing.T) {
	got, err := InterestPortion(uint256.NewInt(1000), 1200)
	if err != nil {
		t.Fatalf("interest portion: %v", err)
	}
	if got.Uint64() != 10 {
		t.Fatalf("interest = %s, want 10", got.Dec())
	}
	// 1500/12 truncates to 125 bps.
	got, err = InterestPortion(uint256.NewInt(10_000), 1500)
	if err != nil {
		t.Fatalf("interest portion: %v", err)
	}
	if got.Uint64() != 125 {
		t.Fatalf("interest = %s, want 125", got.Dec())
	}
}

func TestSplitPayment(t *testing.T) {
	interest, principal, due, payoff, err := splitPayment(uint256.NewInt(1000), 1200, uint256.NewInt(100))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if interest.Uint64() != 10 || principal.Uint64() != 90 || due.Uint64() != 100 || payoff {
		t.Fatalf("unexpected split %s/%s/%s payoff=%v", interest.Dec(), principal.Dec(), due.Dec(), payoff)
	}

	interest, principal, due, payoff, err = splitPayment(uint256.NewInt(50), 1200, uint256.NewInt(100))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if interest.Uint64() != 0 || principal.Uint64() != 50 || due.Uint64() != 50 || !payoff {
		t.Fatalf("unexpected payoff split %s/%s/%s payoff=%v", interest.Dec(), principal.Dec(), due.Dec(), payoff)
	}

	interest, principal, due, payoff, err = splitPayment(uint256.NewInt(10_000), 1200, uint256.NewInt(40))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if interest.Uint64() != 40 || !principal.IsZero() || due.Uint64() != 40 || payoff {
		t.Fatalf("underpayment should only cover interest: %s/%s/%s", interest.Dec(), principal.Dec(), due.Dec())
	}
}
