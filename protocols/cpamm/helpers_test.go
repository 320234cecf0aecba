package cpamm

import (
	"io"
	"log/slog"
	"testing"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/defistate/cpamm-engine/protocols/cpamm/basefee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

var (
	testProgram = types.Pubkey{0xC0}
	testPoolKey = types.Pubkey{0xA0}
	testMintA   = types.Pubkey{0x0A}
	testMintB   = types.Pubkey{0x0B}
	testPayer   = types.Pubkey{0xEE}
)

const (
	testCliffFee  = uint64(10_000_000) // 1%
	testLiquidity = uint64(1_000_000_000_000)
	testTimestamp = uint64(1_000)
)

// newTestPool is priced at 1.0 inside [0.25, 4] with 1e12 units of liquidity on each side
// of the current price, so both legs hold 5e11 tokens.
func newTestPool(collectFeeMode types.CollectFeeMode, baseFee basefee.Info) *Pool {
	return &Pool{
		Address:    testPoolKey,
		TokenAMint: testMintA,
		TokenBMint: testMintB,
		PoolFees: PoolFees{
			BaseFee:            baseFee,
			ProtocolFeePercent: constants.ProtocolFeePercent,
			PartnerFeePercent:  constants.PartnerFeePercent,
			ReferralFeePercent: constants.HostFeePercent,
			InitSqrtPrice:      new(uint256.Int).Set(constants.OneQ64),
		},
		Liquidity:        new(uint256.Int).Lsh(uint256.NewInt(testLiquidity), 64),
		SqrtPrice:        new(uint256.Int).Set(constants.OneQ64),
		SqrtMinPrice:     new(uint256.Int).Rsh(constants.OneQ64, 1),
		SqrtMaxPrice:     new(uint256.Int).Lsh(constants.OneQ64, 1),
		ActivationType:   types.ActivationTimestamp,
		CollectFeeMode:   collectFeeMode,
		Version:          constants.CurrentPoolVersion,
		FeeAPerLiquidity: new(uint256.Int),
		FeeBPerLiquidity: new(uint256.Int),
	}
}

func flatFee() basefee.Info {
	return basefee.FeeTimeScheduler{CliffFeeNumerator: testCliffFee, Mode: types.FeeTimeSchedulerLinear}.Info()
}

func rateLimiterFee() basefee.Info {
	return basefee.FeeRateLimiter{
		CliffFeeNumerator:  1_000_000,
		FeeIncrementBps:    20,
		MaxLimiterDuration: 300,
		MaxFeeBps:          4_000,
		ReferenceAmount:    5_000_000_000,
	}.Info()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEngine struct {
	*Engine
	clock *ManualClock
}

func newTestEngine(t *testing.T, pools ...*Pool) testEngine {
	t.Helper()
	registry := NewRegistry()
	for _, p := range pools {
		require.NoError(t, registry.Add(p))
	}
	clock := NewManualClock(500, testTimestamp)
	engine, err := NewEngine(&Config{
		ProgramID: testProgram,
		Pools:     registry,
		Mints:     NoTransferFees{},
		Clock:     clock,
		Registry:  prometheus.NewRegistry(),
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return testEngine{Engine: engine, clock: clock}
}
