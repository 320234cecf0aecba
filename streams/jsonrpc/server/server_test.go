package server

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/cpamm/basefee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/protocols/mintregistry"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/client"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/stateops"
)

var (
	poolKey = types.Pubkey{0xA0}
	mintA   = types.Pubkey{0x0A}
	mintB   = types.Pubkey{0x0B}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPool() *cpamm.Pool {
	return &cpamm.Pool{
		Address:    poolKey,
		TokenAMint: mintA,
		TokenBMint: mintB,
		PoolFees: cpamm.PoolFees{
			BaseFee:            basefee.FeeTimeScheduler{CliffFeeNumerator: 10_000_000, Mode: types.FeeTimeSchedulerLinear}.Info(),
			ProtocolFeePercent: constants.ProtocolFeePercent,
			InitSqrtPrice:      new(uint256.Int).Set(constants.OneQ64),
		},
		Liquidity:        new(uint256.Int).Lsh(uint256.NewInt(1_000_000_000_000), 64),
		SqrtPrice:        new(uint256.Int).Set(constants.OneQ64),
		SqrtMinPrice:     new(uint256.Int).Rsh(constants.OneQ64, 1),
		SqrtMaxPrice:     new(uint256.Int).Lsh(constants.OneQ64, 1),
		ActivationType:   types.ActivationTimestamp,
		CollectFeeMode:   types.BothToken,
		Version:          constants.CurrentPoolVersion,
		FeeAPerLiquidity: new(uint256.Int),
		FeeBPerLiquidity: new(uint256.Int),
	}
}

type fixture struct {
	engine *cpamm.Engine
	mints  *mintregistry.Registry
	ops    *stateops.StateOps
	server *Server
	reg    *prometheus.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()

	pools := cpamm.NewRegistry()
	require.NoError(t, pools.Add(testPool()))
	mints := mintregistry.NewRegistry(
		mintregistry.Mint{Address: mintA, Symbol: "AAA", Decimals: 6},
		mintregistry.Mint{Address: mintB, Symbol: "BBB", Decimals: 9},
	)
	clock := cpamm.NewManualClock(500, 1_000)

	eng, err := cpamm.NewEngine(&cpamm.Config{
		ProgramID: types.Pubkey{0xC0},
		Pools:     pools,
		Mints:     mints,
		Clock:     clock,
		Registry:  reg,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	ops, err := stateops.NewStateOps(testLogger(), reg)
	require.NoError(t, err)

	srv, err := NewServer(&Config{
		Engine:   eng,
		Mints:    mints,
		Differ:   ops,
		Clock:    clock,
		Cluster:  "localnet",
		Registry: reg,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	return fixture{engine: eng, mints: mints, ops: ops, server: srv, reg: reg}
}

func swapArgs(amountIn uint64) client.SwapArgs {
	return client.SwapArgs{SwapRequest: cpamm.SwapRequest{
		Pool:      poolKey,
		InputMint: mintA,
		Params:    cpamm.SwapParameters2{Amount0: amountIn, SwapMode: uint8(types.ExactIn)},
	}}
}

func TestNewServer_ConfigValidation(t *testing.T) {
	f := newFixture(t)
	valid := func() *Config {
		return &Config{
			Engine:   f.engine,
			Mints:    f.mints,
			Differ:   f.ops,
			Clock:    cpamm.NewManualClock(0, 0),
			Registry: prometheus.NewRegistry(),
			Logger:   testLogger(),
		}
	}
	_, err := NewServer(valid())
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"engine":   func(c *Config) { c.Engine = nil },
		"mints":    func(c *Config) { c.Mints = nil },
		"differ":   func(c *Config) { c.Differ = nil },
		"clock":    func(c *Config) { c.Clock = nil },
		"registry": func(c *Config) { c.Registry = nil },
		"logger":   func(c *Config) { c.Logger = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			_, err := NewServer(cfg)
			require.ErrorContains(t, err, "config:")
		})
	}
}

func TestServer_Refresh(t *testing.T) {
	f := newFixture(t)

	initial := f.server.State()
	assert.Equal(t, uint64(0), initial.Slot.Sequence)
	assert.Equal(t, "localnet", initial.Cluster)
	require.Len(t, initial.Protocols[PoolsProtocolID].Data, 1)

	events := make(chan client.SubscriptionEvent, 4)
	_, sub, err := f.server.subscribe(events)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	f.server.Refresh()
	assert.Equal(t, uint64(0), f.server.State().Slot.Sequence, "nothing changed, nothing published")
	assert.Empty(t, events)

	f.mints.Put(mintregistry.Mint{Address: types.Pubkey{0x0C}, Symbol: "CCC", Decimals: 6})
	f.server.Refresh()
	assert.Equal(t, uint64(1), f.server.State().Slot.Sequence)

	select {
	case evt := <-events:
		assert.Equal(t, client.EventDiff, evt.Type)
		assert.Contains(t, string(evt.Payload), `"fromSequence":0`)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for diff")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.server.metrics.eventsPublished.WithLabelValues(client.EventDiff)))
}

func TestServer_StreamAndCalls(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = f.server.Run(ctx) }()

	httpServer := httptest.NewServer(f.server.Handler([]string{"*"}))
	defer httpServer.Close()
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	stream, err := client.NewClient(ctx, client.Config{
		URL:              wsURL,
		Logger:           testLogger(),
		BufferSize:       10,
		StatePatcher:     f.ops.Patch,
		StateDecoder:     f.ops.DecodeStateJSON,
		StateDiffDecoder: f.ops.DecodeStateDiffJSON,
	})
	require.NoError(t, err)

	select {
	case state := <-stream.State():
		assert.Equal(t, uint64(0), state.Slot.Sequence)
		pools := state.Protocols[PoolsProtocolID].Data.([]cpamm.Pool)
		require.Len(t, pools, 1)
		assert.Equal(t, uint64(500_000_000_000), pools[0].ReserveA)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the full state")
	}

	caller, err := client.Dial(ctx, httpServer.URL)
	require.NoError(t, err)
	defer caller.Close()

	quote, err := caller.Quote(ctx, swapArgs(1_000_000))
	require.NoError(t, err)

	swapped, err := caller.Swap(ctx, swapArgs(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, quote.SwapResult.OutputAmount, swapped.SwapResult.OutputAmount)

	select {
	case evt := <-stream.Swaps():
		assert.Equal(t, poolKey, evt.Pool)
		assert.Equal(t, swapped.SwapResult.OutputAmount, evt.SwapResult.OutputAmount)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the swap event")
	}

	select {
	case state := <-stream.State():
		assert.Equal(t, uint64(1), state.Slot.Sequence)
		pools := state.Protocols[PoolsProtocolID].Data.([]cpamm.Pool)
		require.Len(t, pools, 1)
		live, err := f.engine.Pools().Get(poolKey)
		require.NoError(t, err)
		assert.True(t, pools[0].Equal(live), "the patched pool matches the engine")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the diff")
	}

	t.Run("pool errors keep their code", func(t *testing.T) {
		args := swapArgs(1_000_000)
		args.Pool = types.Pubkey{0xFF}
		_, err := caller.Swap(ctx, args)
		require.Error(t, err)

		var rpcErr rpc.Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, int(poolerr.Code(poolerr.ErrPoolNotFound)), rpcErr.ErrorCode())
	})
	t.Run("fee updates go through the engine", func(t *testing.T) {
		dynamic, err := cpamm.DefaultDynamicFeeParameters(10_000_000)
		require.NoError(t, err)

		evt, err := caller.UpdatePoolFees(ctx, poolKey, types.Pubkey{0xAD}, cpamm.UpdatePoolFeesParameters{DynamicFee: &dynamic})
		require.NoError(t, err)
		assert.Equal(t, poolKey, evt.Pool)

		live, err := f.engine.Pools().Get(poolKey)
		require.NoError(t, err)
		assert.True(t, live.PoolFees.DynamicFee.IsEnabled())

		_, err = caller.UpdatePoolFees(ctx, poolKey, types.Pubkey{0xAD}, cpamm.UpdatePoolFeesParameters{})
		var rpcErr rpc.Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, int(poolerr.Code(poolerr.ErrInvalidUpdatePoolFeesParameters)), rpcErr.ErrorCode())
	})
}
