// Package basefee implements the pluggable base fee schedules and the two byte layouts
// they are stored in: the compact wire Parameters and the in-place runtime Info.
package basefee

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/feemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// FeeQuery carries everything a schedule may look at when pricing a trade.
// Schedules that do not depend on amount, direction or price ignore those fields.
type FeeQuery struct {
	CurrentPoint     uint64
	ActivationPoint  uint64
	TradeDirection   types.TradeDirection
	Amount           uint64
	InitSqrtPrice    *uint256.Int
	CurrentSqrtPrice *uint256.Int
}

// Handler is the capability shared by every base fee schedule.
type Handler interface {
	// Validate rejects parameter sets that are inconsistent or leave the global fee bounds.
	Validate(collectFeeMode types.CollectFeeMode, activationType types.ActivationType) error
	// FeeNumeratorFromIncludedAmount prices a trade whose Amount already contains the fee.
	FeeNumeratorFromIncludedAmount(q FeeQuery) (uint64, error)
	// FeeNumeratorFromExcludedAmount prices a trade whose Amount is net of the fee.
	FeeNumeratorFromExcludedAmount(q FeeQuery) (uint64, error)
	// IsStatic reports whether the schedule has reached its terminal fee.
	IsStatic(currentPoint, activationPoint uint64) (bool, error)
	MinFeeNumerator() (uint64, error)
}

// validateFeeBounds applies the protocol-wide floor and the current version's cap.
func validateFeeBounds(minFeeNumerator, maxFeeNumerator uint64) error {
	if err := feemath.ValidateFeeFraction(minFeeNumerator, constants.FeeDenominator); err != nil {
		return err
	}
	if err := feemath.ValidateFeeFraction(maxFeeNumerator, constants.FeeDenominator); err != nil {
		return err
	}
	maxAllowed, err := constants.MaxFeeNumerator(constants.CurrentPoolVersion)
	if err != nil {
		return err
	}
	if minFeeNumerator < constants.MinFeeNumerator || maxFeeNumerator > maxAllowed {
		return errorsmod.Wrapf(poolerr.ErrExceedMaxFeeBps, "fee range [%d, %d] outside [%d, %d]",
			minFeeNumerator, maxFeeNumerator, constants.MinFeeNumerator, maxAllowed)
	}
	return nil
}

// decay is the fee after period decay steps, shared by the time and market cap schedulers.
// period must already be clamped to the schedule's number of periods.
func decay(cliffFeeNumerator, reductionFactor, period uint64, exponential bool) (uint64, error) {
	if !exponential {
		reduction, err := safemath.Mul(reductionFactor, period)
		if err != nil {
			return 0, err
		}
		return safemath.Sub(cliffFeeNumerator, reduction)
	}

	p, err := safemath.ToUint16(period)
	if err != nil {
		return 0, errorsmod.Wrapf(poolerr.ErrMathOverflow, "period %d", period)
	}
	return feemath.FeeInPeriod(cliffFeeNumerator, reductionFactor, p)
}
