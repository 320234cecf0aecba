package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/defistate/cpamm-engine/protocols/cpamm"
	poolindexer "github.com/defistate/cpamm-engine/protocols/cpamm/indexer"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/protocols/mintregistry"
	mintindexer "github.com/defistate/cpamm-engine/protocols/mintregistry/indexer"
)

const (
	testConfig = "config/testdata/config.yaml"

	timeSchedulerWire = "0x40420f000000000014002c010000000000000f0100000000000001000000"
	staticFeeWire     = "0xa02526000000000000000000000000000000000000000000000000000000"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), err
}

func TestDecodeFee(t *testing.T) {
	out, err := execute(t, "", "decode-fee", timeSchedulerWire)
	require.NoError(t, err)

	var v feeView
	require.NoError(t, yaml.Unmarshal([]byte(out), &v))
	assert.Equal(t, "fee_time_scheduler_exponential", v.Mode)
	assert.Equal(t, uint64(1_000_000), v.CliffFeeNumerator)
	assert.Equal(t, uint16(20), v.NumberOfPeriod)
	assert.Equal(t, uint64(300), v.PeriodFrequency)
	assert.Equal(t, uint64(271), v.ReductionFactor)
	assert.Equal(t, timeSchedulerWire, v.Wire)
	assert.Len(t, v.Runtime, 2+64)

	t.Run("runtime form decodes to the same schedule", func(t *testing.T) {
		out, err := execute(t, "", "decode-fee", v.Runtime)
		require.NoError(t, err)
		var again feeView
		require.NoError(t, yaml.Unmarshal([]byte(out), &again))
		assert.Equal(t, v, again)
	})

	t.Run("bad length", func(t *testing.T) {
		_, err := execute(t, "", "decode-fee", "0x0102")
		require.ErrorContains(t, err, "expected 30 (wire) or 32 (runtime) bytes")
	})
}

func TestEncodeFee(t *testing.T) {
	schedule := `
mode: fee_time_scheduler_exponential
cliff_fee_numerator: 1000000
number_of_period: 20
period_frequency: 300
reduction_factor: 271
`
	out, err := execute(t, schedule, "encode-fee")
	require.NoError(t, err)

	var v feeView
	require.NoError(t, yaml.Unmarshal([]byte(out), &v))
	assert.Equal(t, timeSchedulerWire, v.Wire)

	t.Run("invalid schedule", func(t *testing.T) {
		_, err := execute(t, "mode: fee_time_scheduler_linear\ncliff_fee_numerator: 1\n", "encode-fee")
		require.Error(t, err)
	})

	t.Run("unknown pair", func(t *testing.T) {
		_, err := execute(t, "", "quote", "--config", testConfig, "--log-level", "error",
			"--input-mint", "AAA", "--output-mint", "AAA", "--amount", "1")
		require.ErrorContains(t, err, "no pool trades")
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := execute(t, "mode: flat\n", "encode-fee")
		require.ErrorContains(t, err, "unknown base fee mode")
	})
}

func TestFeeAt(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		fee     uint64
		percent string
		static  bool
	}{
		{"static", []string{staticFeeWire}, 2_500_000, "0.2500%", true},
		{"schedule start", []string{timeSchedulerWire, "--point", "100", "--activation-point", "100"}, 1_000_000, "0.1000%", false},
		{"schedule end", []string{timeSchedulerWire, "--point", "100000"}, 0, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, "", append([]string{"fee-at"}, tc.args...)...)
			require.NoError(t, err)

			var v feeAtView
			require.NoError(t, yaml.Unmarshal([]byte(out), &v))
			assert.Equal(t, tc.static, v.Static)
			if tc.fee != 0 {
				assert.Equal(t, tc.fee, v.FeeNumerator)
				assert.Equal(t, tc.percent, v.FeePercent)
			} else {
				assert.Equal(t, v.MinFeeNumerator, v.FeeNumerator, "a finished schedule charges its floor")
			}
		})
	}
}

func TestQuote_Local(t *testing.T) {
	out, err := execute(t, "",
		"quote",
		"--config", testConfig,
		"--log-level", "error",
		"--pool", "BmaESF6VznDEMgEtPjcSFGFaQZQKy1J4RnM5YCeEKinB",
		"--input-mint", "g35TxFqwMx95vCk63fTxGTHb6ei4W24qg5t2x6xD3cT",
		"--amount", "1000000",
	)
	require.NoError(t, err)

	var evt cpamm.EvtSwap2
	require.NoError(t, json.Unmarshal([]byte(out), &evt))
	assert.Equal(t, uint64(1_000_000), evt.SwapResult.IncludedFeeInputAmount)
	assert.Positive(t, evt.SwapResult.OutputAmount)
	assert.Positive(t, evt.SwapResult.TradingFee)

	t.Run("pool picked by symbol pair", func(t *testing.T) {
		out, err := execute(t, "", "quote", "--config", testConfig, "--log-level", "error",
			"--input-mint", "aaa", "--output-mint", "BBB", "--amount", "1000000")
		require.NoError(t, err)

		var byPair cpamm.EvtSwap2
		require.NoError(t, json.Unmarshal([]byte(out), &byPair))
		assert.Equal(t, evt.Pool, byPair.Pool)
		assert.Equal(t, evt.SwapResult.OutputAmount, byPair.SwapResult.OutputAmount)
	})

	t.Run("unknown pair", func(t *testing.T) {
		_, err := execute(t, "", "quote", "--config", testConfig, "--log-level", "error",
			"--input-mint", "AAA", "--output-mint", "AAA", "--amount", "1")
		require.ErrorContains(t, err, "no pool trades")
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := execute(t, "", "quote", "--config", testConfig,
			"--pool", "BmaESF6VznDEMgEtPjcSFGFaQZQKy1J4RnM5YCeEKinB",
			"--input-mint", "g35TxFqwMx95vCk63fTxGTHb6ei4W24qg5t2x6xD3cT",
			"--amount", "1", "--mode", "sideways")
		require.ErrorContains(t, err, "unknown swap mode")
	})
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		_, err := newLogger(level)
		require.NoError(t, err, level)
	}
	_, err := newLogger("loud")
	require.Error(t, err)
}

func TestPairName(t *testing.T) {
	var (
		poolKey = types.Pubkey{0xA0}
		mintA   = types.Pubkey{0x0A}
		mintB   = types.Pubkey{0x0B}
	)
	pools := poolindexer.New().Index([]cpamm.Pool{{Address: poolKey, TokenAMint: mintA, TokenBMint: mintB}})
	mints := mintindexer.New().Index([]mintregistry.Mint{{Address: mintA, Symbol: "AAA"}})

	assert.Equal(t, "AAA/"+mintB.String(), pairName(pools, mints, poolKey))
	assert.Equal(t, "unknown", pairName(pools, mints, types.Pubkey{0xFF}))
}
