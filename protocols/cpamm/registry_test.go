package cpamm

import (
	"context"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

func TestRegistry(t *testing.T) {
	t.Run("add stores a private copy with reserves", func(t *testing.T) {
		r := NewRegistry()
		pool := newTestPool(types.BothToken, flatFee())
		require.NoError(t, r.Add(pool))

		pool.SqrtPrice.SetUint64(1)
		got, err := r.Get(testPoolKey)
		require.NoError(t, err)
		assert.Equal(t, uint64(500_000_000_000), got.ReserveA)
		assert.Equal(t, uint64(500_000_000_000), got.ReserveB)
		assert.False(t, got.SqrtPrice.Eq(pool.SqrtPrice), "the caller's pool is not shared")
	})

	t.Run("duplicate and invalid pools are rejected", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add(newTestPool(types.BothToken, flatFee())))
		require.ErrorIs(t, r.Add(newTestPool(types.BothToken, flatFee())), poolerr.ErrInvalidInput)

		bad := newTestPool(types.BothToken, flatFee())
		bad.Address = types.Pubkey{0xA1}
		bad.SqrtPrice = new(uint256.Int).Lsh(bad.SqrtMaxPrice, 1)
		require.ErrorIs(t, r.Add(bad), poolerr.ErrPriceRangeViolation)

		sameMints := newTestPool(types.BothToken, flatFee())
		sameMints.Address = types.Pubkey{0xA2}
		sameMints.TokenBMint = sameMints.TokenAMint
		require.ErrorIs(t, r.Add(sameMints), poolerr.ErrInvalidInput)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("get and update of unknown pools", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Get(testPoolKey)
		require.ErrorIs(t, err, poolerr.ErrPoolNotFound)
		require.ErrorIs(t, r.Update(testPoolKey, func(*Pool) error { return nil }), poolerr.ErrPoolNotFound)
	})

	t.Run("update commits only on success", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add(newTestPool(types.BothToken, flatFee())))

		err := r.Update(testPoolKey, func(p *Pool) error {
			p.ProtocolAFee = 42
			return poolerr.ErrUndetermined
		})
		require.ErrorIs(t, err, poolerr.ErrUndetermined)
		got, _ := r.Get(testPoolKey)
		assert.Zero(t, got.ProtocolAFee)

		require.NoError(t, r.Update(testPoolKey, func(p *Pool) error {
			p.ProtocolAFee = 42
			return nil
		}))
		got, _ = r.Get(testPoolKey)
		assert.Equal(t, uint64(42), got.ProtocolAFee)
	})

	t.Run("view is ordered and remove drops pools", func(t *testing.T) {
		r := NewRegistry()
		for _, b := range []byte{0xA3, 0xA1, 0xA2} {
			p := newTestPool(types.BothToken, flatFee())
			p.Address = types.Pubkey{b}
			require.NoError(t, r.Add(p))
		}
		view := r.View()
		require.Len(t, view, 3)
		assert.Equal(t, types.Pubkey{0xA1}, view[0].Address)
		assert.Equal(t, types.Pubkey{0xA3}, view[2].Address)

		r.Remove(types.Pubkey{0xA2})
		r.Remove(types.Pubkey{0xFF})
		assert.Equal(t, 2, r.Len())
	})
}

func TestEngineSwap_Concurrent(t *testing.T) {
	te := newTestEngine(t, newTestPool(types.BothToken, flatFee()))

	const workers, swapsPerWorker = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*swapsPerWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			mint := testMintA
			if w%2 == 1 {
				mint = testMintB
			}
			for i := 0; i < swapsPerWorker; i++ {
				_, err := te.Swap(context.Background(), SwapRequest{Pool: testPoolKey, InputMint: mint, Params: exactIn(1_000_000, 0)})
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Serialized swaps leave a consistent pool behind.
	pool, err := te.Pools().Get(testPoolKey)
	require.NoError(t, err)
	reserveA, reserveB, err := pool.Reserves()
	require.NoError(t, err)
	assert.Equal(t, reserveA, pool.ReserveA)
	assert.Equal(t, reserveB, pool.ReserveB)
	assert.NotZero(t, pool.ProtocolAFee)
	assert.NotZero(t, pool.ProtocolBFee)
}
