package cpamm

import (
	"math"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/feemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
)

// DynamicFee is the volatility-tracking surcharge state of a pool.
// The zero value (Initialized false) disables the surcharge.
type DynamicFee struct {
	Initialized              bool         `json:"initialized"`
	MaxVolatilityAccumulator uint32       `json:"maxVolatilityAccumulator"`
	VariableFeeControl       uint32       `json:"variableFeeControl"`
	BinStep                  uint16       `json:"binStep"`
	FilterPeriod             uint16       `json:"filterPeriod"`
	DecayPeriod              uint16       `json:"decayPeriod"`
	ReductionFactor          uint16       `json:"reductionFactor"`
	LastUpdateTimestamp      uint64       `json:"lastUpdateTimestamp"`
	BinStepU128              *uint256.Int `json:"binStepU128"`
	SqrtPriceReference       *uint256.Int `json:"sqrtPriceReference"`
	VolatilityAccumulator    *uint256.Int `json:"volatilityAccumulator"`
	VolatilityReference      *uint256.Int `json:"volatilityReference"`
}

func cloneInt(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}

// clone returns a copy sharing no memory with d, with nil counters zeroed.
func (d DynamicFee) clone() DynamicFee {
	out := d
	out.BinStepU128 = cloneInt(d.BinStepU128)
	out.SqrtPriceReference = cloneInt(d.SqrtPriceReference)
	out.VolatilityAccumulator = cloneInt(d.VolatilityAccumulator)
	out.VolatilityReference = cloneInt(d.VolatilityReference)
	return out
}

func (d DynamicFee) equal(o DynamicFee) bool {
	return d.Initialized == o.Initialized &&
		d.MaxVolatilityAccumulator == o.MaxVolatilityAccumulator &&
		d.VariableFeeControl == o.VariableFeeControl &&
		d.BinStep == o.BinStep &&
		d.FilterPeriod == o.FilterPeriod &&
		d.DecayPeriod == o.DecayPeriod &&
		d.ReductionFactor == o.ReductionFactor &&
		d.LastUpdateTimestamp == o.LastUpdateTimestamp &&
		cloneInt(d.BinStepU128).Eq(cloneInt(o.BinStepU128)) &&
		cloneInt(d.SqrtPriceReference).Eq(cloneInt(o.SqrtPriceReference)) &&
		cloneInt(d.VolatilityAccumulator).Eq(cloneInt(o.VolatilityAccumulator)) &&
		cloneInt(d.VolatilityReference).Eq(cloneInt(o.VolatilityReference))
}

// IsEnabled reports whether the surcharge is active.
func (d *DynamicFee) IsEnabled() bool {
	return d.Initialized
}

// VariableFee is the current surcharge numerator, zero when disabled.
func (d *DynamicFee) VariableFee() (*uint256.Int, error) {
	if !d.IsEnabled() {
		return new(uint256.Int), nil
	}
	return feemath.VariableFee(cloneInt(d.VolatilityAccumulator), d.BinStep, d.VariableFeeControl)
}

// DeltaBinID is the number of bins between two prices, doubled because prices are square roots.
func DeltaBinID(binStepU128, sqrtPriceA, sqrtPriceB *uint256.Int) (*uint256.Int, error) {
	upper, lower := sqrtPriceA, sqrtPriceB
	if lower.Gt(upper) {
		upper, lower = lower, upper
	}
	ratio, err := safemath.ShlDiv(upper, lower, constants.ScaleOffset, safemath.Down)
	if err != nil {
		return nil, err
	}
	ratio, err = safemath.ToU128(ratio)
	if err != nil {
		return nil, err
	}
	delta, err := safemath.SubU128(ratio, constants.OneQ64)
	if err != nil {
		return nil, err
	}
	delta, err = safemath.DivU128(delta, binStepU128)
	if err != nil {
		return nil, err
	}
	return safemath.MulU128(delta, uint256.NewInt(2))
}

// UpdateReferences refreshes the reference price and decays the volatility reference.
// It runs before every swap.
func (d *DynamicFee) UpdateReferences(sqrtPrice *uint256.Int, currentTimestamp uint64) error {
	elapsed, err := safemath.Sub(currentTimestamp, d.LastUpdateTimestamp)
	if err != nil {
		return err
	}
	if elapsed < uint64(d.FilterPeriod) {
		return nil
	}

	d.SqrtPriceReference = new(uint256.Int).Set(sqrtPrice)
	if elapsed >= uint64(d.DecayPeriod) {
		d.VolatilityReference = new(uint256.Int)
		return nil
	}
	reference, err := safemath.MulU128(cloneInt(d.VolatilityAccumulator), uint256.NewInt(uint64(d.ReductionFactor)))
	if err != nil {
		return err
	}
	d.VolatilityReference = reference.Div(reference, uint256.NewInt(constants.MaxBasisPoint))
	return nil
}

// UpdateVolatilityAccumulator measures how far sqrtPrice moved from the reference.
// It runs after every swap.
func (d *DynamicFee) UpdateVolatilityAccumulator(sqrtPrice *uint256.Int) error {
	delta, err := DeltaBinID(cloneInt(d.BinStepU128), sqrtPrice, cloneInt(d.SqrtPriceReference))
	if err != nil {
		return err
	}
	scaled, err := safemath.MulU128(delta, uint256.NewInt(constants.MaxBasisPoint))
	if err != nil {
		return err
	}
	accumulator, err := safemath.AddU128(cloneInt(d.VolatilityReference), scaled)
	if err != nil {
		return err
	}
	maxAccumulator := uint256.NewInt(uint64(d.MaxVolatilityAccumulator))
	if accumulator.Gt(maxAccumulator) {
		accumulator = maxAccumulator
	}
	d.VolatilityAccumulator = accumulator
	return nil
}

// --- Parameters ---

// DynamicFeeParameters configure the surcharge. The zero value means "disabled".
type DynamicFeeParameters struct {
	BinStep                  uint16       `json:"binStep"`
	BinStepU128              *uint256.Int `json:"binStepU128"`
	FilterPeriod             uint16       `json:"filterPeriod"`
	DecayPeriod              uint16       `json:"decayPeriod"`
	ReductionFactor          uint16       `json:"reductionFactor"`
	MaxVolatilityAccumulator uint32       `json:"maxVolatilityAccumulator"`
	VariableFeeControl       uint32       `json:"variableFeeControl"`
}

// IsZero reports whether p is the disabling value.
func (p DynamicFeeParameters) IsZero() bool {
	return p.BinStep == 0 && (p.BinStepU128 == nil || p.BinStepU128.IsZero()) &&
		p.FilterPeriod == 0 && p.DecayPeriod == 0 && p.ReductionFactor == 0 &&
		p.MaxVolatilityAccumulator == 0 && p.VariableFeeControl == 0
}

// defaultMaxVolatilityAccumulator is the accumulator reached by a 15% price move at the default bin step.
const defaultMaxVolatilityAccumulator uint32 = 14_460_000

// DefaultDynamicFeeParameters are the stock parameters for a given base fee.
// The variable fee tops out at 20% of the base fee.
func DefaultDynamicFeeParameters(baseFeeNumerator uint64) (DynamicFeeParameters, error) {
	maxVolatilityAccumulator := defaultMaxVolatilityAccumulator
	maxFee, err := safemath.MulDivU64(baseFeeNumerator, 20, 100, safemath.Down)
	if err != nil {
		return DynamicFeeParameters{}, err
	}
	square, err := safemath.Mul(uint64(maxVolatilityAccumulator)*uint64(constants.BinStepBpsDefault), uint64(maxVolatilityAccumulator)*uint64(constants.BinStepBpsDefault))
	if err != nil {
		return DynamicFeeParameters{}, err
	}
	vfc, err := safemath.MulDivU64(maxFee, constants.DynamicFeeScalingFactor, square, safemath.Down)
	if err != nil {
		return DynamicFeeParameters{}, err
	}
	if vfc > math.MaxUint32 {
		return DynamicFeeParameters{}, errorsmod.Wrapf(poolerr.ErrTypeCastFailed, "variable fee control %d", vfc)
	}
	return DynamicFeeParameters{
		BinStep:                  constants.BinStepBpsDefault,
		BinStepU128:              new(uint256.Int).Set(constants.BinStepBpsU128Default),
		FilterPeriod:             constants.DynamicFeeFilterPeriodDefault,
		DecayPeriod:              constants.DynamicFeeDecayPeriodDefault,
		ReductionFactor:          constants.DynamicFeeReductionFactor,
		MaxVolatilityAccumulator: maxVolatilityAccumulator,
		VariableFeeControl:       uint32(vfc),
	}, nil
}

// Validate accepts only the default bin step and a variable fee that cannot overflow.
func (p DynamicFeeParameters) Validate() error {
	if p.BinStep != constants.BinStepBpsDefault {
		return errorsmod.Wrapf(poolerr.ErrInvalidInput, "bin step %d", p.BinStep)
	}
	if p.BinStepU128 == nil || !p.BinStepU128.Eq(constants.BinStepBpsU128Default) {
		return errorsmod.Wrap(poolerr.ErrInvalidInput, "bin step u128")
	}
	if p.FilterPeriod >= p.DecayPeriod {
		return errorsmod.Wrapf(poolerr.ErrInvalidInput, "filter period %d not below decay period %d", p.FilterPeriod, p.DecayPeriod)
	}
	if uint64(p.ReductionFactor) > constants.MaxBasisPoint {
		return errorsmod.Wrapf(poolerr.ErrInvalidInput, "reduction factor %d", p.ReductionFactor)
	}
	if _, err := feemath.VariableFee(uint256.NewInt(uint64(p.MaxVolatilityAccumulator)), p.BinStep, p.VariableFeeControl); err != nil {
		return errorsmod.Wrapf(poolerr.ErrInvalidInput, "variable fee overflows: %v", err)
	}
	return nil
}

// toDynamicFee builds an enabled surcharge with fresh runtime state.
func (p DynamicFeeParameters) toDynamicFee() DynamicFee {
	return DynamicFee{
		Initialized:              true,
		MaxVolatilityAccumulator: p.MaxVolatilityAccumulator,
		VariableFeeControl:       p.VariableFeeControl,
		BinStep:                  p.BinStep,
		FilterPeriod:             p.FilterPeriod,
		DecayPeriod:              p.DecayPeriod,
		ReductionFactor:          p.ReductionFactor,
		BinStepU128:              cloneInt(p.BinStepU128),
		SqrtPriceReference:       new(uint256.Int),
		VolatilityAccumulator:    new(uint256.Int),
		VolatilityReference:      new(uint256.Int),
	}
}
