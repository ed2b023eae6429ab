package lending

import (
	"github.com/holiman/uint256"

	nativecommon "remitlend/native/common"
)

// InterestScale is the fixed-point scale of AccInterestPerShare.
const InterestScale = 1_000_000_000

var interestScale = uint256.NewInt(InterestScale)

// settle returns the lender's earned interest including everything accrued
// since the last checkpoint. Accrual is computed against the deposit that was
// held during the interval, so it must run before the deposit changes.
func settle(pos *LenderPosition, acc *uint256.Int) (*uint256.Int, error) {
	delta, err := nativecommon.CheckedSub(acc, &pos.LastAccInterestPerShare, "interest accumulator")
	if err != nil {
		return nil, err
	}
	accrued, err := nativecommon.MulDiv(&pos.DepositAmount, delta, interestScale)
	if err != nil {
		return nil, err
	}
	return nativecommon.CheckedAdd(&pos.EarnedInterest, accrued)
}

// accumulatorIncrement is interest*1e9/totalLiquidity. The caller skips the
// update when the pool is empty.
func accumulatorIncrement(interest, totalLiquidity *uint256.Int) (*uint256.Int, error) {
	return nativecommon.MulDiv(interest, interestScale, totalLiquidity)
}

// sharePercentage is deposit*10000/total. A zero total yields zero; Deposit
// assigns the whole share to a lender entering an empty pool before calling it.
func sharePercentage(deposit, total *uint256.Int) uint64 {
	if total.IsZero() {
		return 0
	}
	share, err := nativecommon.MulDiv(deposit, uint256.NewInt(nativecommon.BasisPoints), total)
	if err != nil {
		return 0
	}
	return share.Uint64()
}

// utilization is borrowed*10000/liquidity, or zero for an empty pool.
func utilization(borrowed, liquidity *uint256.Int) uint64 {
	return sharePercentage(borrowed, liquidity)
}
