package curvemath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
)

// --- Helper Functions for Invariant Testing ---

// newRandInt generates a random value below 2^bits.
func newRandInt(bits int) *uint256.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(err)
	}
	v, _ := uint256.FromBig(n)
	return v
}

// newRandSqrtPrice draws a price inside the protocol bounds.
func newRandSqrtPrice() *uint256.Int {
	span := new(uint256.Int).Sub(constants.MaxSqrtPrice, constants.MinSqrtPrice)
	r := newRandInt(96)
	r.Mod(r, span)
	return r.Add(r, constants.MinSqrtPrice)
}

func newRandLiquidity() *uint256.Int {
	l := newRandInt(120)
	if l.IsZero() {
		l.SetOne()
	}
	return l
}

// --- Deterministic cases ---

func TestGetDeltaAmountB_UnitPrice(t *testing.T) {
	// One unit of liquidity (2^64) across one Q64 price unit moves exactly one token.
	liquidity := new(uint256.Int).Set(constants.OneQ64)
	lower := new(uint256.Int).Set(constants.OneQ64)
	upper := new(uint256.Int).Lsh(constants.OneQ64, 1)

	down, err := GetDeltaAmountB(lower, upper, liquidity, safemath.Down)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), down)

	up, err := GetDeltaAmountB(lower, upper, liquidity, safemath.Up)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), up)
}

func TestGetDeltaAmountA_UnitPrice(t *testing.T) {
	// L = 2^64 * 2^64, prices 1 and 2: Δa = L * 1 / (1 * 2) in Q64 units = 2^63.
	liquidity := new(uint256.Int).Lsh(constants.OneQ64, 64)
	lower := new(uint256.Int).Set(constants.OneQ64)
	upper := new(uint256.Int).Lsh(constants.OneQ64, 1)

	amount, err := GetDeltaAmountA(lower, upper, liquidity, safemath.Down)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<63), amount)
}

func TestGetNextSqrtPrice_ZeroAmount(t *testing.T) {
	sqrtPrice := new(uint256.Int).Set(constants.OneQ64)
	liquidity := new(uint256.Int).Lsh(constants.OneQ64, 10)

	next, err := GetNextSqrtPriceFromInput(sqrtPrice, liquidity, 0, true)
	require.NoError(t, err)
	assert.Equal(t, sqrtPrice, next)

	next, err = GetNextSqrtPriceFromInput(sqrtPrice, liquidity, 0, false)
	require.NoError(t, err)
	assert.Equal(t, sqrtPrice, next)
}

func TestGetNextSqrtPrice_RejectsZeroInputs(t *testing.T) {
	_, err := GetNextSqrtPriceFromInput(new(uint256.Int), constants.OneQ64, 1, true)
	require.ErrorIs(t, err, ErrSqrtPriceZero)

	_, err = GetNextSqrtPriceFromOutput(constants.OneQ64, new(uint256.Int), 1, true)
	require.ErrorIs(t, err, ErrLiquidityZero)
}

// --- Invariant Tests (Simulating Fuzzing) ---

func TestGetDeltaAmounts_RoundingInvariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		p := newRandSqrtPrice()
		q := newRandSqrtPrice()
		liquidity := newRandLiquidity()

		aDown, errDown := GetDeltaAmountA(p, q, liquidity, safemath.Down)
		aUp, errUp := GetDeltaAmountA(p, q, liquidity, safemath.Up)
		if errDown == nil && errUp == nil {
			assert.LessOrEqual(t, aDown, aUp)
			assert.Less(t, aUp-aDown, uint64(2))
		}

		bDown, errDown := GetDeltaAmountB(p, q, liquidity, safemath.Down)
		bUp, errUp := GetDeltaAmountB(p, q, liquidity, safemath.Up)
		if errDown == nil && errUp == nil {
			assert.LessOrEqual(t, bDown, bUp)
			assert.Less(t, bUp-bDown, uint64(2))
		}
	}
}

func TestGetNextSqrtPriceFromInput_Invariants(t *testing.T) {
	for i := 0; i < 500; i++ {
		sqrtP := newRandSqrtPrice()
		liquidity := newRandLiquidity()
		amountIn := newRandInt(48).Uint64()
		aForB := i%2 == 0

		sqrtQ, err := GetNextSqrtPriceFromInput(sqrtP, liquidity, amountIn, aForB)
		if err != nil {
			continue
		}

		if aForB {
			// Selling A never raises the price, and the input covers the A delta.
			assert.True(t, sqrtQ.Cmp(sqrtP) <= 0)
			delta, err := GetDeltaAmountA(sqrtQ, sqrtP, liquidity, safemath.Up)
			if err == nil {
				assert.GreaterOrEqual(t, amountIn, delta)
			}
		} else {
			assert.True(t, sqrtQ.Cmp(sqrtP) >= 0)
			delta, err := GetDeltaAmountB(sqrtP, sqrtQ, liquidity, safemath.Up)
			if err == nil {
				assert.GreaterOrEqual(t, amountIn, delta)
			}
		}
	}
}

func TestGetNextSqrtPriceFromOutput_Invariants(t *testing.T) {
	for i := 0; i < 500; i++ {
		sqrtP := newRandSqrtPrice()
		liquidity := newRandLiquidity()
		amountOut := newRandInt(32).Uint64()
		aForB := i%2 == 0

		sqrtQ, err := GetNextSqrtPriceFromOutput(sqrtP, liquidity, amountOut, aForB)
		if err != nil {
			continue
		}

		if aForB {
			// Taking B out lowers the price far enough to release at least amountOut.
			assert.True(t, sqrtQ.Cmp(sqrtP) <= 0)
			delta, err := GetDeltaAmountB(sqrtQ, sqrtP, liquidity, safemath.Down)
			if err == nil {
				assert.GreaterOrEqual(t, delta, amountOut)
			}
		} else {
			assert.True(t, sqrtQ.Cmp(sqrtP) >= 0)
			delta, err := GetDeltaAmountA(sqrtP, sqrtQ, liquidity, safemath.Down)
			if err == nil {
				assert.GreaterOrEqual(t, delta, amountOut)
			}
		}
	}
}
