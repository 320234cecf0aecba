package cpamm

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

func ptr[T any](v T) *T { return &v }

func TestPoolUpdatePoolFees_CliffFee(t *testing.T) {
	t.Run("static schedule accepts a new cliff fee", func(t *testing.T) {
		pool := newTestPool(types.BothToken, flatFee())
		require.NoError(t, pool.UpdatePoolFees(UpdatePoolFeesParameters{CliffFeeNumerator: ptr(uint64(20_000_000))}, testTimestamp))
		assert.Equal(t, uint64(20_000_000), pool.PoolFees.BaseFee.CliffFeeNumerator())
	})

	t.Run("running schedule rejects it", func(t *testing.T) {
		pool := newRateLimitedPool()
		err := pool.UpdatePoolFees(UpdatePoolFeesParameters{CliffFeeNumerator: ptr(uint64(2_000_000))}, testTimestamp)
		require.ErrorIs(t, err, poolerr.ErrCannotUpdateBaseFee)
	})

	t.Run("closed limiter window accepts it", func(t *testing.T) {
		pool := newRateLimitedPool()
		require.NoError(t, pool.UpdatePoolFees(UpdatePoolFeesParameters{CliffFeeNumerator: ptr(uint64(2_000_000))}, 1_201))
		assert.Equal(t, uint64(2_000_000), pool.PoolFees.BaseFee.CliffFeeNumerator())
	})

	cases := []struct {
		name  string
		cliff uint64
	}{
		{"below the minimum", 99_999},
		{"above the post-update maximum", 100_000_001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool := newTestPool(types.BothToken, flatFee())
			err := pool.UpdatePoolFees(UpdatePoolFeesParameters{CliffFeeNumerator: ptr(tc.cliff)}, testTimestamp)
			require.ErrorIs(t, err, poolerr.ErrInvalidUpdatePoolFeesParameters)
			assert.Equal(t, testCliffFee, pool.PoolFees.BaseFee.CliffFeeNumerator())
		})
	}

	t.Run("nothing to update", func(t *testing.T) {
		pool := newTestPool(types.BothToken, flatFee())
		err := pool.UpdatePoolFees(UpdatePoolFeesParameters{}, testTimestamp)
		require.ErrorIs(t, err, poolerr.ErrInvalidUpdatePoolFeesParameters)
	})
}

func TestPoolUpdatePoolFees_DynamicFee(t *testing.T) {
	defaults, err := DefaultDynamicFeeParameters(testCliffFee)
	require.NoError(t, err)

	t.Run("enable", func(t *testing.T) {
		pool := newTestPool(types.BothToken, flatFee())
		require.NoError(t, pool.UpdatePoolFees(UpdatePoolFeesParameters{DynamicFee: &defaults}, testTimestamp))
		assert.True(t, pool.PoolFees.DynamicFee.IsEnabled())
		assert.Equal(t, defaults.VariableFeeControl, pool.PoolFees.DynamicFee.VariableFeeControl)
		assert.True(t, pool.PoolFees.DynamicFee.VolatilityAccumulator.IsZero())
	})

	t.Run("update keeps accumulated volatility", func(t *testing.T) {
		pool := newTestPool(types.BothToken, flatFee())
		require.NoError(t, pool.UpdatePoolFees(UpdatePoolFeesParameters{DynamicFee: &defaults}, testTimestamp))
		pool.PoolFees.DynamicFee.VolatilityAccumulator = uint256.NewInt(12_345)
		pool.PoolFees.DynamicFee.LastUpdateTimestamp = 990

		changed := defaults
		changed.VariableFeeControl = defaults.VariableFeeControl / 2
		require.NoError(t, pool.UpdatePoolFees(UpdatePoolFeesParameters{DynamicFee: &changed}, testTimestamp))
		assert.Equal(t, changed.VariableFeeControl, pool.PoolFees.DynamicFee.VariableFeeControl)
		assert.Equal(t, uint64(12_345), pool.PoolFees.DynamicFee.VolatilityAccumulator.Uint64())
		assert.Equal(t, uint64(990), pool.PoolFees.DynamicFee.LastUpdateTimestamp)
	})

	t.Run("zero parameters disable", func(t *testing.T) {
		pool := newTestPool(types.BothToken, flatFee())
		require.NoError(t, pool.UpdatePoolFees(UpdatePoolFeesParameters{DynamicFee: &defaults}, testTimestamp))
		require.NoError(t, pool.UpdatePoolFees(UpdatePoolFeesParameters{DynamicFee: &DynamicFeeParameters{}}, testTimestamp))
		assert.False(t, pool.PoolFees.DynamicFee.IsEnabled())
	})

	t.Run("invalid parameters are rejected", func(t *testing.T) {
		pool := newTestPool(types.BothToken, flatFee())
		bad := defaults
		bad.FilterPeriod = bad.DecayPeriod
		err := pool.UpdatePoolFees(UpdatePoolFeesParameters{DynamicFee: &bad}, testTimestamp)
		require.ErrorIs(t, err, poolerr.ErrInvalidInput)
		assert.False(t, pool.PoolFees.DynamicFee.IsEnabled())
	})
}

func TestPoolSetStatus(t *testing.T) {
	pool := newTestPool(types.BothToken, flatFee())

	require.ErrorIs(t, pool.SetStatus(PoolEnabled), poolerr.ErrInvalidPoolStatus)
	require.ErrorIs(t, pool.SetStatus(PoolStatus(2)), poolerr.ErrTypeCastFailed)

	require.NoError(t, pool.SetStatus(PoolDisabled))
	assert.False(t, pool.CanSwap())
	require.ErrorIs(t, pool.SetStatus(PoolDisabled), poolerr.ErrInvalidPoolStatus)
}

func TestEngineUpdatePoolFees(t *testing.T) {
	te := newTestEngine(t, newTestPool(types.BothToken, flatFee()))

	events := make(chan EvtUpdatePoolFees, 1)
	sub := te.SubscribePoolFeeUpdates(events)
	defer sub.Unsubscribe()

	params := UpdatePoolFeesParameters{CliffFeeNumerator: ptr(uint64(5_000_000))}
	evt, err := te.UpdatePoolFees(context.Background(), testPoolKey, testPayer, params)
	require.NoError(t, err)
	assert.Equal(t, testPayer, evt.Operator)

	select {
	case got := <-events:
		assert.Equal(t, *evt, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fee update event")
	}

	pool, err := te.Pools().Get(testPoolKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), pool.PoolFees.BaseFee.CliffFeeNumerator())

	// A rejected update emits nothing and leaves the pool alone.
	_, err = te.UpdatePoolFees(context.Background(), testPoolKey, testPayer, UpdatePoolFeesParameters{})
	require.Error(t, err)
	select {
	case got := <-events:
		t.Fatalf("unexpected event %+v", got)
	default:
	}
}
