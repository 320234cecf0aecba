package basefee

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// FeeTimeScheduler decays the fee from the cliff in fixed-length periods after activation.
type FeeTimeScheduler struct {
	CliffFeeNumerator uint64            `json:"cliffFeeNumerator"`
	NumberOfPeriod    uint16            `json:"numberOfPeriod"`
	PeriodFrequency   uint64            `json:"periodFrequency"`
	ReductionFactor   uint64            `json:"reductionFactor"`
	Mode              types.BaseFeeMode `json:"mode"`
}

var _ Handler = FeeTimeScheduler{}

func (s FeeTimeScheduler) exponential() (bool, error) {
	switch s.Mode {
	case types.FeeTimeSchedulerLinear:
		return false, nil
	case types.FeeTimeSchedulerExponential:
		return true, nil
	default:
		return false, errorsmod.Wrapf(poolerr.ErrInvalidBaseFeeMode, "time scheduler with mode %s", s.Mode)
	}
}

func (s FeeTimeScheduler) feeNumeratorByPeriod(period uint64) (uint64, error) {
	exp, err := s.exponential()
	if err != nil {
		return 0, err
	}
	return decay(s.CliffFeeNumerator, s.ReductionFactor, min(period, uint64(s.NumberOfPeriod)), exp)
}

// FeeNumerator is the fee at currentPoint. Before activation the terminal period applies.
func (s FeeTimeScheduler) FeeNumerator(currentPoint, activationPoint uint64) (uint64, error) {
	if s.PeriodFrequency == 0 {
		return s.CliffFeeNumerator, nil
	}

	period := uint64(s.NumberOfPeriod)
	if currentPoint >= activationPoint {
		period = min((currentPoint-activationPoint)/s.PeriodFrequency, period)
	}
	return s.feeNumeratorByPeriod(period)
}

func (s FeeTimeScheduler) Validate(types.CollectFeeMode, types.ActivationType) error {
	if s.PeriodFrequency != 0 || s.NumberOfPeriod != 0 || s.ReductionFactor != 0 {
		if s.PeriodFrequency == 0 || s.NumberOfPeriod == 0 || s.ReductionFactor == 0 {
			return errorsmod.Wrapf(poolerr.ErrInvalidFeeTimeScheduler,
				"period frequency %d, number of period %d, reduction factor %d must be all zero or all set",
				s.PeriodFrequency, s.NumberOfPeriod, s.ReductionFactor)
		}
	}

	minFee, err := s.MinFeeNumerator()
	if err != nil {
		return err
	}
	return validateFeeBounds(minFee, s.CliffFeeNumerator)
}

func (s FeeTimeScheduler) FeeNumeratorFromIncludedAmount(q FeeQuery) (uint64, error) {
	return s.FeeNumerator(q.CurrentPoint, q.ActivationPoint)
}

func (s FeeTimeScheduler) FeeNumeratorFromExcludedAmount(q FeeQuery) (uint64, error) {
	return s.FeeNumerator(q.CurrentPoint, q.ActivationPoint)
}

// IsStatic is true once the last period has elapsed. The bound is computed in 128 bits.
func (s FeeTimeScheduler) IsStatic(currentPoint, activationPoint uint64) (bool, error) {
	span := new(uint256.Int).Mul(uint256.NewInt(uint64(s.NumberOfPeriod)), uint256.NewInt(s.PeriodFrequency))
	last := span.Add(span, uint256.NewInt(activationPoint))
	return uint256.NewInt(currentPoint).Gt(last), nil
}

func (s FeeTimeScheduler) MinFeeNumerator() (uint64, error) {
	return s.feeNumeratorByPeriod(uint64(s.NumberOfPeriod))
}
