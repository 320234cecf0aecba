package cpamm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/curvemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/feemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

func TestResolveFeeMode(t *testing.T) {
	cases := []struct {
		mode         types.CollectFeeMode
		direction    types.TradeDirection
		feesOnInput  bool
		feesOnTokenA bool
	}{
		{types.BothToken, types.AtoB, false, false},
		{types.BothToken, types.BtoA, false, true},
		{types.OnlyB, types.AtoB, false, false},
		{types.OnlyB, types.BtoA, true, false},
	}
	for _, tc := range cases {
		got, err := ResolveFeeMode(tc.mode, tc.direction, true)
		require.NoError(t, err)
		assert.Equal(t, FeeMode{FeesOnInput: tc.feesOnInput, FeesOnTokenA: tc.feesOnTokenA, HasReferral: true}, got,
			"collect mode %d direction %s", tc.mode, tc.direction)
	}

	_, err := ResolveFeeMode(types.CollectFeeMode(7), types.AtoB, false)
	require.ErrorIs(t, err, poolerr.ErrTypeCastFailed)
}

func TestSplitFees(t *testing.T) {
	fees := PoolFees{ProtocolFeePercent: 20, ReferralFeePercent: 20, PartnerFeePercent: 50}

	cases := []struct {
		name        string
		hasReferral bool
		hasPartner  bool
		want        SplitFees
	}{
		{"protocol only", false, false, SplitFees{TradingFee: 800, ProtocolFee: 200}},
		{"with referral", true, false, SplitFees{TradingFee: 800, ProtocolFee: 160, ReferralFee: 40}},
		{"with partner", false, true, SplitFees{TradingFee: 800, ProtocolFee: 100, PartnerFee: 100}},
		{"with both", true, true, SplitFees{TradingFee: 800, ProtocolFee: 80, PartnerFee: 80, ReferralFee: 40}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := fees.SplitFees(1_000, tc.hasReferral, tc.hasPartner)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("zero partner percent ignores partner", func(t *testing.T) {
		noPartner := PoolFees{ProtocolFeePercent: 20}
		got, err := noPartner.SplitFees(1_000, false, true)
		require.NoError(t, err)
		assert.Zero(t, got.PartnerFee)
	})
}

func TestSplitFeesConservesTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fees := PoolFees{
			ProtocolFeePercent: rapid.Uint8Range(0, 100).Draw(t, "protocol"),
			ReferralFeePercent: rapid.Uint8Range(0, 100).Draw(t, "referral"),
			PartnerFeePercent:  rapid.Uint8Range(0, 100).Draw(t, "partner"),
		}
		amount := rapid.Uint64().Draw(t, "amount")
		split, err := fees.SplitFees(amount, rapid.Bool().Draw(t, "hasReferral"), rapid.Bool().Draw(t, "hasPartner"))
		if err != nil {
			t.Fatalf("split %d: %v", amount, err)
		}
		sum := new(uint256.Int).SetUint64(split.TradingFee)
		for _, part := range []uint64{split.ProtocolFee, split.PartnerFee, split.ReferralFee} {
			sum.Add(sum, uint256.NewInt(part))
		}
		if !sum.Eq(uint256.NewInt(amount)) {
			t.Fatalf("split of %d sums to %s", amount, sum)
		}
	})
}

func TestSwapResultFromExactInput_FeeOnOutput(t *testing.T) {
	pool := newTestPool(types.BothToken, flatFee())
	feeMode, err := ResolveFeeMode(pool.CollectFeeMode, types.AtoB, false)
	require.NoError(t, err)

	const amountIn = uint64(1_000_000)
	result, err := pool.SwapResultFromExactInput(amountIn, feeMode, types.AtoB, testTimestamp)
	require.NoError(t, err)

	next, err := curvemath.GetNextSqrtPriceFromInput(pool.SqrtPrice, pool.Liquidity, amountIn, true)
	require.NoError(t, err)
	gross, err := curvemath.GetDeltaAmountB(next, pool.SqrtPrice, pool.Liquidity, safemath.Down)
	require.NoError(t, err)
	net, fee, err := feemath.ExcludedFeeAmount(testCliffFee, gross)
	require.NoError(t, err)

	assert.Equal(t, amountIn, result.IncludedFeeInputAmount)
	assert.Equal(t, amountIn, result.ExcludedFeeInputAmount)
	assert.Equal(t, net, result.OutputAmount)
	assert.Equal(t, fee, result.TotalFee())
	assert.Zero(t, result.AmountLeft)
	assert.True(t, result.NextSqrtPrice.Lt(pool.SqrtPrice), "selling A lowers the price")
}

func TestSwapResultFromExactInput_FeeOnInput(t *testing.T) {
	pool := newTestPool(types.OnlyB, flatFee())
	feeMode, err := ResolveFeeMode(pool.CollectFeeMode, types.BtoA, true)
	require.NoError(t, err)

	const amountIn = uint64(1_000_000)
	result, err := pool.SwapResultFromExactInput(amountIn, feeMode, types.BtoA, testTimestamp)
	require.NoError(t, err)

	assert.Equal(t, amountIn, result.IncludedFeeInputAmount)
	assert.Equal(t, uint64(990_000), result.ExcludedFeeInputAmount)
	assert.Equal(t, uint64(10_000), result.TotalFee())
	assert.Equal(t, uint64(400), result.ReferralFee)
	assert.Equal(t, uint64(1_600), result.ProtocolFee)
	assert.Equal(t, uint64(8_000), result.TradingFee)
	assert.True(t, result.NextSqrtPrice.Gt(pool.SqrtPrice), "selling B raises the price")
	assert.Less(t, result.OutputAmount, uint64(990_000))
}

func TestSwapResultFromExactInput_PriceRange(t *testing.T) {
	pool := newTestPool(types.BothToken, flatFee())
	feeMode, err := ResolveFeeMode(pool.CollectFeeMode, types.AtoB, false)
	require.NoError(t, err)

	// At most 1e12 of A fits between the current and minimum price.
	_, err = pool.SwapResultFromExactInput(2*testLiquidity, feeMode, types.AtoB, testTimestamp)
	require.ErrorIs(t, err, poolerr.ErrPriceRangeViolation)
}

func TestSwapResultFromPartialInput(t *testing.T) {
	t.Run("fits entirely", func(t *testing.T) {
		pool := newTestPool(types.BothToken, flatFee())
		feeMode, _ := ResolveFeeMode(pool.CollectFeeMode, types.AtoB, false)

		partial, err := pool.SwapResultFromPartialInput(1_000_000, feeMode, types.AtoB, testTimestamp)
		require.NoError(t, err)
		exact, err := pool.SwapResultFromExactInput(1_000_000, feeMode, types.AtoB, testTimestamp)
		require.NoError(t, err)
		assert.Equal(t, exact, partial)
	})

	t.Run("stops at the lower bound", func(t *testing.T) {
		pool := newTestPool(types.BothToken, flatFee())
		feeMode, _ := ResolveFeeMode(pool.CollectFeeMode, types.AtoB, false)

		amountIn := 10 * testLiquidity
		result, err := pool.SwapResultFromPartialInput(amountIn, feeMode, types.AtoB, testTimestamp)
		require.NoError(t, err)
		assert.True(t, result.NextSqrtPrice.Eq(pool.SqrtMinPrice))
		assert.Equal(t, testLiquidity, result.ExcludedFeeInputAmount)
		assert.Equal(t, testLiquidity, result.IncludedFeeInputAmount)
		assert.Equal(t, amountIn-testLiquidity, result.AmountLeft)
	})

	t.Run("fee on input is recomputed on the consumed amount", func(t *testing.T) {
		pool := newTestPool(types.OnlyB, flatFee())
		feeMode, _ := ResolveFeeMode(pool.CollectFeeMode, types.BtoA, false)

		amountIn := 2 * testLiquidity
		result, err := pool.SwapResultFromPartialInput(amountIn, feeMode, types.BtoA, testTimestamp)
		require.NoError(t, err)
		assert.True(t, result.NextSqrtPrice.Eq(pool.SqrtMaxPrice))
		assert.Equal(t, testLiquidity, result.ExcludedFeeInputAmount)

		included, fee, err := feemath.IncludedFeeAmount(testCliffFee, testLiquidity)
		require.NoError(t, err)
		assert.Equal(t, included, result.IncludedFeeInputAmount)
		assert.Equal(t, fee, result.TotalFee())
		assert.Greater(t, result.AmountLeft, uint64(0))
	})
}

func TestSwapResultFromExactOutput(t *testing.T) {
	for _, mode := range []types.CollectFeeMode{types.BothToken, types.OnlyB} {
		for _, direction := range []types.TradeDirection{types.AtoB, types.BtoA} {
			pool := newTestPool(mode, flatFee())
			feeMode, err := ResolveFeeMode(mode, direction, false)
			require.NoError(t, err)

			const amountOut = uint64(500_000)
			result, err := pool.SwapResultFromExactOutput(amountOut, feeMode, direction, testTimestamp)
			require.NoError(t, err, "mode %d direction %s", mode, direction)
			assert.Equal(t, amountOut, result.OutputAmount)
			assert.Greater(t, result.IncludedFeeInputAmount, amountOut)

			// Selling the quoted input must deliver at least the requested output.
			check := newTestPool(mode, flatFee())
			exact, err := check.SwapResultFromExactInput(result.IncludedFeeInputAmount, feeMode, direction, testTimestamp)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, exact.OutputAmount, amountOut, "mode %d direction %s", mode, direction)
		}
	}
}

func TestSwapResultFromExactOutput_PriceRange(t *testing.T) {
	pool := newTestPool(types.BothToken, flatFee())
	feeMode, _ := ResolveFeeMode(pool.CollectFeeMode, types.BtoA, false)

	// Only 5e11 of A is available above the current price.
	_, err := pool.SwapResultFromExactOutput(testLiquidity, feeMode, types.BtoA, testTimestamp)
	require.Error(t, err)
}

func TestApplySwapResult(t *testing.T) {
	pool := newTestPool(types.BothToken, flatFee())
	feeMode, _ := ResolveFeeMode(pool.CollectFeeMode, types.BtoA, false)

	result, err := pool.SwapResultFromExactInput(1_000_000, feeMode, types.BtoA, testTimestamp)
	require.NoError(t, err)
	require.NoError(t, pool.ApplySwapResult(result, feeMode, testTimestamp))

	assert.True(t, pool.SqrtPrice.Eq(result.NextSqrtPrice))
	assert.Equal(t, result.ProtocolFee, pool.ProtocolAFee, "BtoA in BothToken mode pays fees in A")
	assert.Zero(t, pool.ProtocolBFee)
	assert.False(t, pool.FeeAPerLiquidity.IsZero())
	assert.True(t, pool.FeeBPerLiquidity.IsZero())

	reserveA, reserveB, err := pool.Reserves()
	require.NoError(t, err)
	assert.Equal(t, reserveA, pool.ReserveA)
	assert.Equal(t, reserveB, pool.ReserveB)
	assert.Greater(t, reserveB, testLiquidity/2)
}
