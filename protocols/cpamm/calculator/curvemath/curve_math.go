// Package curvemath is the single-range constant-product curve in Q64.64 sqrt-price space.
// Liquidity is itself scaled by 2^64, so L * Δ√P carries a 2^128 factor.
package curvemath

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
)

var (
	ErrLiquidityZero = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero = errors.New("sqrt price must be greater than zero")
)

// --- Amount deltas ---

// GetDeltaAmountA is the token A amount spanned by [lower, upper]:
// L * (upper - lower) / (lower * upper).
func GetDeltaAmountA(lower, upper, liquidity *uint256.Int, rounding safemath.Rounding) (uint64, error) {
	if lower.IsZero() {
		return 0, ErrSqrtPriceZero
	}
	if lower.Gt(upper) {
		lower, upper = upper, lower
	}

	numerator, err := safemath.Sub256(upper, lower)
	if err != nil {
		return 0, err
	}
	denominator, err := safemath.Mul256(lower, upper)
	if err != nil {
		return 0, err
	}
	amount, err := safemath.MulDiv(liquidity, numerator, denominator, rounding)
	if err != nil {
		return 0, err
	}
	return safemath.ToUint64(amount)
}

// GetDeltaAmountB is the token B amount spanned by [lower, upper]: L * (upper - lower) >> 128.
func GetDeltaAmountB(lower, upper, liquidity *uint256.Int, rounding safemath.Rounding) (uint64, error) {
	if lower.Gt(upper) {
		lower, upper = upper, lower
	}

	delta, err := safemath.Sub256(upper, lower)
	if err != nil {
		return 0, err
	}
	product, err := safemath.Mul256(liquidity, delta)
	if err != nil {
		return 0, err
	}

	amount := new(uint256.Int).Rsh(product, constants.LiquidityScale)
	if rounding == safemath.Up {
		mask := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), constants.LiquidityScale), uint256.NewInt(1))
		if !new(uint256.Int).And(product, mask).IsZero() {
			amount.AddUint64(amount, 1)
		}
	}
	return safemath.ToUint64(amount)
}

// --- Next sqrt price ---

// GetNextSqrtPriceFromInput moves the price by an input amount.
// Selling A pushes the price down, selling B pushes it up.
func GetNextSqrtPriceFromInput(sqrtPrice, liquidity *uint256.Int, amountIn uint64, aForB bool) (*uint256.Int, error) {
	if sqrtPrice.IsZero() {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return nil, ErrLiquidityZero
	}

	if aForB {
		return nextSqrtPriceFromAmountARoundingUp(sqrtPrice, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmountBRoundingDown(sqrtPrice, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput moves the price by an output amount.
func GetNextSqrtPriceFromOutput(sqrtPrice, liquidity *uint256.Int, amountOut uint64, aForB bool) (*uint256.Int, error) {
	if sqrtPrice.IsZero() {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return nil, ErrLiquidityZero
	}

	if aForB {
		return nextSqrtPriceFromAmountBRoundingDown(sqrtPrice, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmountARoundingUp(sqrtPrice, liquidity, amountOut, false)
}

// √P' = L * √P / (L ± Δa * √P), always rounded up.
func nextSqrtPriceFromAmountARoundingUp(sqrtPrice, liquidity *uint256.Int, amount uint64, add bool) (*uint256.Int, error) {
	if amount == 0 {
		return new(uint256.Int).Set(sqrtPrice), nil
	}

	product, err := safemath.Mul256(uint256.NewInt(amount), sqrtPrice)
	if err != nil {
		return nil, err
	}

	var denominator *uint256.Int
	if add {
		denominator, err = safemath.Add256(liquidity, product)
	} else {
		denominator, err = safemath.Sub256(liquidity, product)
	}
	if err != nil {
		return nil, err
	}
	if denominator.IsZero() {
		return nil, ErrLiquidityZero
	}

	next, err := safemath.MulDiv(liquidity, sqrtPrice, denominator, safemath.Up)
	if err != nil {
		return nil, err
	}
	return safemath.ToU128(next)
}

// √P' = √P ± Δb / L, rounded down when adding and the quotient rounded up when removing.
func nextSqrtPriceFromAmountBRoundingDown(sqrtPrice, liquidity *uint256.Int, amount uint64, add bool) (*uint256.Int, error) {
	if add {
		quotient, err := safemath.ShlDiv(uint256.NewInt(amount), liquidity, constants.LiquidityScale, safemath.Down)
		if err != nil {
			return nil, err
		}
		return safemath.AddU128(sqrtPrice, quotient)
	}

	quotient, err := safemath.ShlDiv(uint256.NewInt(amount), liquidity, constants.LiquidityScale, safemath.Up)
	if err != nil {
		return nil, err
	}
	return safemath.SubU128(sqrtPrice, quotient)
}
