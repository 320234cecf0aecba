package basefee

import (
	"math"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/feemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// FeeRateLimiter surcharges large buys shortly after activation. Every ReferenceAmount
// bought past the first adds FeeIncrementBps to the marginal fee, up to MaxFeeBps.
type FeeRateLimiter struct {
	CliffFeeNumerator  uint64 `json:"cliffFeeNumerator"`
	FeeIncrementBps    uint16 `json:"feeIncrementBps"`
	MaxLimiterDuration uint32 `json:"maxLimiterDuration"`
	MaxFeeBps          uint32 `json:"maxFeeBps"`
	ReferenceAmount    uint64 `json:"referenceAmount"`
}

var _ Handler = FeeRateLimiter{}

// IsZero reports a limiter with every surcharge field unset; it charges the cliff fee only.
func (r FeeRateLimiter) IsZero() bool {
	return r.ReferenceAmount == 0 && r.MaxLimiterDuration == 0 && r.MaxFeeBps == 0 && r.FeeIncrementBps == 0
}

func (r FeeRateLimiter) isFullySet() bool {
	return r.ReferenceAmount != 0 && r.MaxLimiterDuration != 0 && r.MaxFeeBps != 0 && r.FeeIncrementBps != 0
}

// IsApplied reports whether the surcharge covers a trade. Only B to A trades inside the
// limiter window are surcharged.
func (r FeeRateLimiter) IsApplied(currentPoint, activationPoint uint64, direction types.TradeDirection) (bool, error) {
	if r.IsZero() || direction == types.AtoB {
		return false, nil
	}
	last, err := safemath.Add(activationPoint, uint64(r.MaxLimiterDuration))
	if err != nil {
		return false, err
	}
	return currentPoint <= last, nil
}

func (r FeeRateLimiter) maxFeeNumerator() (uint64, error) {
	return feemath.ToNumerator(uint64(r.MaxFeeBps), constants.FeeDenominator)
}

func (r FeeRateLimiter) feeIncrementNumerator() (uint64, error) {
	return feemath.ToNumerator(uint64(r.FeeIncrementBps), constants.FeeDenominator)
}

// FeeNumeratorForIncludedAmount is the blended fee numerator for a fee-inclusive amount,
// ignoring whether the limiter window is active.
func (r FeeRateLimiter) FeeNumeratorForIncludedAmount(amount uint64) (uint64, error) {
	if amount <= r.ReferenceAmount {
		return r.CliffFeeNumerator, nil
	}

	maxFee, err := r.maxFeeNumerator()
	if err != nil {
		return 0, err
	}
	increment, err := r.feeIncrementNumerator()
	if err != nil {
		return 0, err
	}
	if increment == 0 {
		return 0, errorsmod.Wrap(poolerr.ErrInvalidFeeRateLimiter, "zero fee increment")
	}
	headroom, err := safemath.Sub(maxFee, r.CliffFeeNumerator)
	if err != nil {
		return 0, err
	}

	c := uint256.NewInt(r.CliffFeeNumerator)
	i := uint256.NewInt(increment)
	x0 := uint256.NewInt(r.ReferenceAmount)
	maxIndex := headroom / increment

	diff := amount - r.ReferenceAmount
	a := diff / r.ReferenceAmount
	b := uint256.NewInt(diff % r.ReferenceAmount)

	var feeNumerator *uint256.Int
	if a < maxIndex {
		// x0 * (c + c*a + i*a*(a+1)/2) + b * (c + i*(a+1))
		steps, err := stepSum(c, i, a)
		if err != nil {
			return 0, err
		}
		full, err := safemath.Mul256(x0, steps)
		if err != nil {
			return 0, err
		}
		rate, err := marginalRate(c, i, a+1)
		if err != nil {
			return 0, err
		}
		partial, err := safemath.Mul256(b, rate)
		if err != nil {
			return 0, err
		}
		if feeNumerator, err = safemath.Add256(full, partial); err != nil {
			return 0, err
		}
	} else {
		// x0 * (c + c*mi + i*mi*(mi+1)/2) + ((a-mi)*x0 + b) * maxFee
		steps, err := stepSum(c, i, maxIndex)
		if err != nil {
			return 0, err
		}
		full, err := safemath.Mul256(x0, steps)
		if err != nil {
			return 0, err
		}
		left, err := safemath.Mul256(uint256.NewInt(a-maxIndex), x0)
		if err != nil {
			return 0, err
		}
		if left, err = safemath.Add256(left, b); err != nil {
			return 0, err
		}
		capped, err := safemath.Mul256(left, uint256.NewInt(maxFee))
		if err != nil {
			return 0, err
		}
		if feeNumerator, err = safemath.Add256(full, capped); err != nil {
			return 0, err
		}
	}

	denominator := uint256.NewInt(constants.FeeDenominator)
	fee, err := safemath.Add256(feeNumerator, uint256.NewInt(constants.FeeDenominator-1))
	if err != nil {
		return 0, err
	}
	fee.Div(fee, denominator)

	numerator, err := safemath.MulDiv(fee, denominator, uint256.NewInt(amount), safemath.Up)
	if err != nil {
		return 0, err
	}
	if numerator.Gt(uint256.NewInt(maxFee)) {
		return maxFee, nil
	}
	return numerator.Uint64(), nil
}

// stepSum is c*(n+1) + i*n*(n+1)/2, the summed rate of the first n+1 reference chunks.
func stepSum(c, i *uint256.Int, n uint64) (*uint256.Int, error) {
	nn := uint256.NewInt(n)
	n1, err := safemath.Add256(nn, uint256.NewInt(1))
	if err != nil {
		return nil, err
	}
	base, err := safemath.Mul256(c, n1)
	if err != nil {
		return nil, err
	}
	tri, err := safemath.Mul256(nn, n1)
	if err != nil {
		return nil, err
	}
	tri.Rsh(tri, 1)
	ramp, err := safemath.Mul256(i, tri)
	if err != nil {
		return nil, err
	}
	return safemath.Add256(base, ramp)
}

// marginalRate is c + i*n.
func marginalRate(c, i *uint256.Int, n uint64) (*uint256.Int, error) {
	ramp, err := safemath.Mul256(i, uint256.NewInt(n))
	if err != nil {
		return nil, err
	}
	return safemath.Add256(c, ramp)
}

// excludedAmountAt is what remains of a fee-inclusive amount after the limiter fee.
func (r FeeRateLimiter) excludedAmountAt(included uint64) (uint64, error) {
	numerator, err := r.FeeNumeratorForIncludedAmount(included)
	if err != nil {
		return 0, err
	}
	excluded, _, err := feemath.ExcludedFeeAmount(numerator, included)
	return excluded, err
}

// FeeNumeratorForExcludedAmount inverts FeeNumeratorForIncludedAmount by bisection:
// it finds the smallest fee-inclusive amount that nets at least amount, in at most 64 steps.
func (r FeeRateLimiter) FeeNumeratorForExcludedAmount(amount uint64) (uint64, error) {
	referenceExcluded, _, err := feemath.ExcludedFeeAmount(r.CliffFeeNumerator, r.ReferenceAmount)
	if err != nil {
		return 0, err
	}
	if amount <= referenceExcluded {
		return r.CliffFeeNumerator, nil
	}

	lo, hi := r.ReferenceAmount, uint64(math.MaxUint64)
	top, err := r.excludedAmountAt(hi)
	if err != nil {
		return 0, err
	}
	if top < amount {
		return 0, errorsmod.Wrapf(poolerr.ErrMathOverflow, "no fee-inclusive amount nets %d", amount)
	}

	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		got, err := r.excludedAmountAt(mid)
		if err != nil {
			return 0, err
		}
		if got >= amount {
			hi = mid
		} else {
			lo = mid
		}
	}
	return r.FeeNumeratorForIncludedAmount(hi)
}

func (r FeeRateLimiter) Validate(collectFeeMode types.CollectFeeMode, activationType types.ActivationType) error {
	if r.IsZero() {
		return validateFeeBounds(r.CliffFeeNumerator, r.CliffFeeNumerator)
	}

	if collectFeeMode != types.OnlyB {
		return errorsmod.Wrap(poolerr.ErrInvalidFeeRateLimiter, "rate limiter requires fees collected in token B")
	}
	if !r.isFullySet() {
		return errorsmod.Wrap(poolerr.ErrInvalidFeeRateLimiter, "every rate limiter field must be set")
	}

	maxDuration := constants.MaxRateLimiterDurationInSlots
	if activationType == types.ActivationTimestamp {
		maxDuration = constants.MaxRateLimiterDurationInSeconds
	}
	if r.MaxLimiterDuration > maxDuration {
		return errorsmod.Wrapf(poolerr.ErrInvalidFeeRateLimiter, "limiter duration %d exceeds %d", r.MaxLimiterDuration, maxDuration)
	}

	increment, err := r.feeIncrementNumerator()
	if err != nil {
		return err
	}
	if increment >= constants.FeeDenominator {
		return errorsmod.Wrapf(poolerr.ErrInvalidFeeRateLimiter, "fee increment %d bps", r.FeeIncrementBps)
	}

	maxFee, err := r.maxFeeNumerator()
	if err != nil {
		return err
	}
	maxAllowed, err := constants.MaxFeeNumerator(constants.CurrentPoolVersion)
	if err != nil {
		return err
	}
	if r.CliffFeeNumerator < constants.MinFeeNumerator || r.CliffFeeNumerator > maxAllowed || maxFee <= r.CliffFeeNumerator {
		return errorsmod.Wrapf(poolerr.ErrInvalidFeeRateLimiter, "cliff fee %d with max fee %d", r.CliffFeeNumerator, maxFee)
	}

	minFee, err := r.FeeNumeratorForIncludedAmount(0)
	if err != nil {
		return err
	}
	topFee, err := r.FeeNumeratorForIncludedAmount(math.MaxUint64)
	if err != nil {
		return err
	}
	return validateFeeBounds(minFee, topFee)
}

func (r FeeRateLimiter) FeeNumeratorFromIncludedAmount(q FeeQuery) (uint64, error) {
	applied, err := r.IsApplied(q.CurrentPoint, q.ActivationPoint, q.TradeDirection)
	if err != nil || !applied {
		return r.CliffFeeNumerator, err
	}
	return r.FeeNumeratorForIncludedAmount(q.Amount)
}

func (r FeeRateLimiter) FeeNumeratorFromExcludedAmount(q FeeQuery) (uint64, error) {
	applied, err := r.IsApplied(q.CurrentPoint, q.ActivationPoint, q.TradeDirection)
	if err != nil || !applied {
		return r.CliffFeeNumerator, err
	}
	return r.FeeNumeratorForExcludedAmount(q.Amount)
}

// IsStatic is true once the limiter window has closed.
func (r FeeRateLimiter) IsStatic(currentPoint, activationPoint uint64) (bool, error) {
	if r.IsZero() {
		return true, nil
	}
	last, err := safemath.Add(activationPoint, uint64(r.MaxLimiterDuration))
	if err != nil {
		return false, err
	}
	return currentPoint > last, nil
}

func (r FeeRateLimiter) MinFeeNumerator() (uint64, error) {
	return r.CliffFeeNumerator, nil
}
