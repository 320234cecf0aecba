package feemath

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
)

// Pow raises a Q64.64 base to an integer exponent by repeated squaring.
// Bases at or above one are inverted first so every intermediate stays below 2^128.
func Pow(base *uint256.Int, exp int64) (*uint256.Int, error) {
	invert := exp < 0
	if exp == 0 {
		return new(uint256.Int).Set(constants.OneQ64), nil
	}
	if invert {
		exp = -exp
	}
	if exp >= int64(constants.MaxExponential) {
		return nil, errorsmod.Wrapf(poolerr.ErrMathOverflow, "pow exponent %d", exp)
	}

	squared := new(uint256.Int).Set(base)
	result := new(uint256.Int).Set(constants.OneQ64)

	if !squared.Lt(result) {
		if squared.IsZero() {
			return nil, errorsmod.Wrap(poolerr.ErrMathOverflow, "pow zero base")
		}
		squared.Div(constants.U128Max, squared)
		invert = !invert
	}

	for bit := int64(1); bit < int64(constants.MaxExponential); bit <<= 1 {
		if exp&bit != 0 {
			prod, err := safemath.MulU128(result, squared)
			if err != nil {
				return nil, err
			}
			result = prod.Rsh(prod, constants.ScaleOffset)
		}
		if bit<<1 > exp {
			break
		}
		sq, err := safemath.MulU128(squared, squared)
		if err != nil {
			return nil, err
		}
		squared = sq.Rsh(sq, constants.ScaleOffset)
	}

	if result.IsZero() {
		return nil, errorsmod.Wrap(poolerr.ErrMathOverflow, "pow underflow to zero")
	}
	if invert {
		result = new(uint256.Int).Div(constants.U128Max, result)
	}
	return result, nil
}

// FeeInPeriod applies exponential decay: cliff * (1 - reduction/10000)^period.
func FeeInPeriod(cliffFeeNumerator, reductionFactor uint64, period uint16) (uint64, error) {
	if reductionFactor == 0 {
		return cliffFeeNumerator, nil
	}

	bps, err := safemath.ShlU128(uint256.NewInt(reductionFactor), constants.ScaleOffset)
	if err != nil {
		return 0, err
	}
	bps.Div(bps, uint256.NewInt(constants.MaxBasisPoint))

	base, err := safemath.SubU128(constants.OneQ64, bps)
	if err != nil {
		return 0, err
	}

	result, err := Pow(base, int64(period))
	if err != nil {
		return 0, err
	}

	fee, err := safemath.MulU128(result, uint256.NewInt(cliffFeeNumerator))
	if err != nil {
		return 0, err
	}
	fee.Rsh(fee, constants.ScaleOffset)
	return safemath.ToUint64(fee)
}

// ToNumerator converts basis points into a fee numerator over denominator.
func ToNumerator(bps, denominator uint64) (uint64, error) {
	return safemath.MulDivU64(bps, denominator, constants.MaxBasisPoint, safemath.Down)
}

// ToBps converts a fee numerator into basis points, rounding down.
func ToBps(numerator uint64) (uint64, error) {
	return safemath.MulDivU64(numerator, constants.MaxBasisPoint, constants.FeeDenominator, safemath.Down)
}

// ValidateFeeFraction rejects fractions that are not strictly below one.
func ValidateFeeFraction(numerator, denominator uint64) error {
	if denominator == 0 || numerator >= denominator {
		return errorsmod.Wrapf(poolerr.ErrInvalidFee, "fee fraction %d/%d", numerator, denominator)
	}
	return nil
}

// ExcludedFeeAmount splits an amount that already includes the trading fee.
// The fee is rounded up so the pool never undercharges.
func ExcludedFeeAmount(tradeFeeNumerator, includedFeeAmount uint64) (excluded, tradingFee uint64, err error) {
	tradingFee, err = safemath.MulDivU64(includedFeeAmount, tradeFeeNumerator, constants.FeeDenominator, safemath.Up)
	if err != nil {
		return 0, 0, err
	}
	excluded, err = safemath.Sub(includedFeeAmount, tradingFee)
	if err != nil {
		return 0, 0, err
	}
	return excluded, tradingFee, nil
}

// IncludedFeeAmount grosses an amount up so that, after the trading fee, at least
// excludedFeeAmount remains.
func IncludedFeeAmount(tradeFeeNumerator, excludedFeeAmount uint64) (included, feeAmount uint64, err error) {
	denominator, err := safemath.Sub(constants.FeeDenominator, tradeFeeNumerator)
	if err != nil {
		return 0, 0, err
	}
	included, err = safemath.MulDivU64(excludedFeeAmount, constants.FeeDenominator, denominator, safemath.Up)
	if err != nil {
		return 0, 0, err
	}
	feeAmount, err = safemath.Sub(included, excludedFeeAmount)
	if err != nil {
		return 0, 0, err
	}

	inverse, _, err := ExcludedFeeAmount(tradeFeeNumerator, included)
	if err != nil {
		return 0, 0, err
	}
	if inverse < excludedFeeAmount {
		return 0, 0, errorsmod.Wrapf(poolerr.ErrUndetermined, "inverse amount %d below excluded amount %d", inverse, excludedFeeAmount)
	}
	return included, feeAmount, nil
}

// VariableFee is the volatility-driven surcharge: ceil((va * binStep)^2 * vfc / 1e11).
func VariableFee(volatilityAccumulator *uint256.Int, binStep uint16, variableFeeControl uint32) (*uint256.Int, error) {
	vaBin, err := safemath.MulU128(volatilityAccumulator, uint256.NewInt(uint64(binStep)))
	if err != nil {
		return nil, err
	}
	square, err := safemath.MulU128(vaBin, vaBin)
	if err != nil {
		return nil, err
	}
	vFee, err := safemath.MulU128(square, uint256.NewInt(uint64(variableFeeControl)))
	if err != nil {
		return nil, err
	}
	scaled, err := safemath.AddU128(vFee, uint256.NewInt(constants.DynamicFeeScalingFactor-1))
	if err != nil {
		return nil, err
	}
	return scaled.Div(scaled, uint256.NewInt(constants.DynamicFeeScalingFactor)), nil
}
