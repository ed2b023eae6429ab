package loans

import (
	"github.com/holiman/uint256"

	nativecommon "remitlend/native/common"
)

// PaymentInterval is the fixed 30 day month between scheduled payments.
const PaymentInterval uint64 = 30 * 24 * 60 * 60

const monthsPerYear = 12

// InterestRateForScore maps a reliability score to an annual rate in basis
// points. Only score mod 100 is considered.
func InterestRateForScore(score uint64) uint64 {
	s := score % 100
	switch {
	case s >= 90:
		return 1500
	case s >= 80:
		return 2000
	case s >= 70:
		return 3000
	default:
		return 4000
	}
}

// MonthlyPayment amortises principal plus flat interest over months. A zero
// duration returns the whole total.
func MonthlyPayment(principal *uint256.Int, rateBps, months uint64) (*uint256.Int, error) {
	factor, err := nativecommon.CheckedMul(uint256.NewInt(rateBps), uint256.NewInt(months))
	if err != nil {
		return nil, err
	}
	interest, err := nativecommon.MulDiv(principal, factor, uint256.NewInt(monthsPerYear*nativecommon.BasisPoints))
	if err != nil {
		return nil, err
	}
	total, err := nativecommon.CheckedAdd(principal, interest)
	if err != nil {
		return nil, err
	}
	if months == 0 {
		return total, nil
	}
	return total.Div(total, uint256.NewInt(months)), nil
}

// InterestPortion is one month of interest on the outstanding balance. The
// annual rate is divided by 12 first, truncating.
func InterestPortion(outstanding *uint256.Int, annualRateBps uint64) (*uint256.Int, error) {
	monthly := annualRateBps / monthsPerYear
	return nativecommon.MulDiv(outstanding, uint256.NewInt(monthly), uint256.NewInt(nativecommon.BasisPoints))
}

// splitPayment divides amount between interest and principal. Interest is
// capped at amount and principal at outstanding; due is what the payer is
// actually charged.
func splitPayment(outstanding *uint256.Int, rateBps uint64, amount *uint256.Int) (interest, principal, due *uint256.Int, payoff bool, err error) {
	interestDue, err := InterestPortion(outstanding, rateBps)
	if err != nil {
		return nil, nil, nil, false, err
	}
	interest = interestDue
	if amount.Lt(interest) {
		interest = new(uint256.Int).Set(amount)
	}
	principal = nativecommon.SaturatingSub(amount, interestDue)
	if !principal.Lt(outstanding) {
		principal = new(uint256.Int).Set(outstanding)
		payoff = true
	}
	due, err = nativecommon.CheckedAdd(interest, principal)
	if err != nil {
		return nil, nil, nil, false, err
	}
	return interest, principal, due, payoff, nil
}
