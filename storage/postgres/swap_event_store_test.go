package postgres

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/storage"
)

func record(id uint64, pool types.Pubkey, timestamp uint64) *storage.SwapRecord {
	return &storage.SwapRecord{
		ID:             id,
		Pool:           pool,
		TradeDirection: types.BtoA,
		CollectFeeMode: types.OnlyB,
		SwapMode:       uint8(types.ExactIn),
		Amount0:        1_000_000,
		AmountIn:       1_000_000,
		AmountOut:      990_000,
		TradingFee:     8_000,
		ProtocolFee:    2_000,
		NextSqrtPrice:  "18446744073709551616",
		ReserveA:       math.MaxUint64,
		ReserveB:       500_000_000_000,
		Timestamp:      timestamp,
	}
}

func TestSwapEventStore(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSwapEventStore(pool)
	ctx := context.Background()
	poolA := types.Pubkey{0xA0}
	poolB := types.Pubkey{0xB0}

	last, err := store.LastID(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)

	want := record(1, poolA, 100)
	require.NoError(t, store.Insert(ctx, want))
	require.ErrorIs(t, store.Insert(ctx, record(1, poolA, 100)), storage.ErrDuplicateKey)
	require.ErrorIs(t, store.Insert(ctx, record(0, poolA, 100)), storage.ErrInvalidInput)

	got, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, want, got, "u64 values round trip through NUMERIC")

	_, err = store.GetByID(ctx, 99)
	require.ErrorIs(t, err, storage.ErrNotFound)

	t.Run("bulk insert is atomic", func(t *testing.T) {
		err := store.InsertBulk(ctx, []*storage.SwapRecord{record(2, poolA, 110), record(1, poolA, 100)})
		require.ErrorIs(t, err, storage.ErrDuplicateKey)
		_, err = store.GetByID(ctx, 2)
		require.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, store.InsertBulk(ctx, []*storage.SwapRecord{
			record(2, poolA, 110),
			record(3, poolB, 120),
			record(4, poolA, 130),
		}))
	})

	t.Run("time range per pool", func(t *testing.T) {
		got, err := store.GetByPoolTimeRange(ctx, poolA, 100, 130)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, uint64(1), got[0].ID)
		assert.Equal(t, uint64(2), got[1].ID)

		last, err := store.LastID(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), last)
	})
}
