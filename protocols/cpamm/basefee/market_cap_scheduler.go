package basefee

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// FeeMarketCapScheduler decays the fee as the pool price climbs above its initial price.
// A period passes for every SqrtPriceStepBps of sqrt-price growth, until the scheduler expires.
type FeeMarketCapScheduler struct {
	CliffFeeNumerator           uint64            `json:"cliffFeeNumerator"`
	NumberOfPeriod              uint16            `json:"numberOfPeriod"`
	SqrtPriceStepBps            uint32            `json:"sqrtPriceStepBps"`
	SchedulerExpirationDuration uint32            `json:"schedulerExpirationDuration"`
	ReductionFactor             uint64            `json:"reductionFactor"`
	Mode                        types.BaseFeeMode `json:"mode"`
}

var _ Handler = FeeMarketCapScheduler{}

func (s FeeMarketCapScheduler) exponential() (bool, error) {
	switch s.Mode {
	case types.FeeMarketCapSchedulerLinear:
		return false, nil
	case types.FeeMarketCapSchedulerExponential:
		return true, nil
	default:
		return false, errorsmod.Wrapf(poolerr.ErrInvalidBaseFeeMode, "market cap scheduler with mode %s", s.Mode)
	}
}

func (s FeeMarketCapScheduler) feeNumeratorByPeriod(period uint64) (uint64, error) {
	exp, err := s.exponential()
	if err != nil {
		return 0, err
	}
	return decay(s.CliffFeeNumerator, s.ReductionFactor, min(period, uint64(s.NumberOfPeriod)), exp)
}

// period derives the decay step from price growth. Expired and pre-activation
// schedules sit at the terminal period.
func (s FeeMarketCapScheduler) period(currentPoint, activationPoint uint64, initSqrtPrice, currentSqrtPrice *uint256.Int) (uint64, error) {
	expiry, err := safemath.Add(activationPoint, uint64(s.SchedulerExpirationDuration))
	if err != nil {
		return 0, err
	}
	numberOfPeriod := uint64(s.NumberOfPeriod)
	if currentPoint > expiry || currentPoint < activationPoint {
		return numberOfPeriod, nil
	}
	if currentSqrtPrice == nil || initSqrtPrice == nil || !currentSqrtPrice.Gt(initSqrtPrice) {
		return 0, nil
	}

	growth, err := safemath.Sub256(currentSqrtPrice, initSqrtPrice)
	if err != nil {
		return 0, err
	}
	growth, err = safemath.Mul256(growth, uint256.NewInt(constants.MaxBasisPoint))
	if err != nil {
		return 0, err
	}
	growth, err = safemath.Div256(growth, initSqrtPrice)
	if err != nil {
		return 0, err
	}
	passed, err := safemath.Div256(growth, uint256.NewInt(uint64(s.SqrtPriceStepBps)))
	if err != nil {
		return 0, err
	}
	if passed.Gt(uint256.NewInt(numberOfPeriod)) {
		return numberOfPeriod, nil
	}
	return passed.Uint64(), nil
}

// FeeNumerator is the fee for the given point and prices.
func (s FeeMarketCapScheduler) FeeNumerator(currentPoint, activationPoint uint64, initSqrtPrice, currentSqrtPrice *uint256.Int) (uint64, error) {
	period, err := s.period(currentPoint, activationPoint, initSqrtPrice, currentSqrtPrice)
	if err != nil {
		return 0, err
	}
	return s.feeNumeratorByPeriod(period)
}

func (s FeeMarketCapScheduler) Validate(types.CollectFeeMode, types.ActivationType) error {
	if s.ReductionFactor == 0 || s.SqrtPriceStepBps == 0 || s.SchedulerExpirationDuration == 0 || s.NumberOfPeriod == 0 {
		return errorsmod.Wrapf(poolerr.ErrInvalidFeeMarketCapScheduler,
			"reduction factor %d, sqrt price step %d bps, expiration %d, number of period %d must all be set",
			s.ReductionFactor, s.SqrtPriceStepBps, s.SchedulerExpirationDuration, s.NumberOfPeriod)
	}

	minFee, err := s.MinFeeNumerator()
	if err != nil {
		return err
	}
	return validateFeeBounds(minFee, s.CliffFeeNumerator)
}

func (s FeeMarketCapScheduler) FeeNumeratorFromIncludedAmount(q FeeQuery) (uint64, error) {
	return s.FeeNumerator(q.CurrentPoint, q.ActivationPoint, q.InitSqrtPrice, q.CurrentSqrtPrice)
}

func (s FeeMarketCapScheduler) FeeNumeratorFromExcludedAmount(q FeeQuery) (uint64, error) {
	return s.FeeNumerator(q.CurrentPoint, q.ActivationPoint, q.InitSqrtPrice, q.CurrentSqrtPrice)
}

// IsStatic is true once the scheduler has expired.
func (s FeeMarketCapScheduler) IsStatic(currentPoint, activationPoint uint64) (bool, error) {
	expiry, err := safemath.Add(activationPoint, uint64(s.SchedulerExpirationDuration))
	if err != nil {
		return false, err
	}
	return currentPoint > expiry, nil
}

func (s FeeMarketCapScheduler) MinFeeNumerator() (uint64, error) {
	return s.feeNumeratorByPeriod(uint64(s.NumberOfPeriod))
}
