package basefee

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return []byte(strings.TrimSpace(string(raw)))
}

func loadInfo(t *testing.T, name string) Info {
	t.Helper()
	var info Info
	require.NoError(t, info.UnmarshalText(readFixture(t, name)))
	return info
}

func loadParameters(t *testing.T, name string) Parameters {
	t.Helper()
	var p Parameters
	require.NoError(t, p.UnmarshalText(readFixture(t, name)))
	return p
}

// --- Captured records ---

func TestCapturedRuntimeRecords(t *testing.T) {
	cases := []struct {
		fixture   string
		reduction uint64
	}{
		{"config_account_base_fee_info.hex", 417},
		{"pool_account_base_fee_info.hex", 265},
	}
	for _, tc := range cases {
		t.Run(tc.fixture, func(t *testing.T) {
			info := loadInfo(t, tc.fixture)

			h, err := info.Handler()
			require.NoError(t, err)
			s, ok := h.(FeeTimeScheduler)
			require.True(t, ok, "expected a time scheduler, got %T", h)

			assert.Equal(t, uint64(500_000_000), s.CliffFeeNumerator)
			assert.Equal(t, types.FeeTimeSchedulerExponential, s.Mode)
			assert.Equal(t, uint16(120), s.NumberOfPeriod)
			assert.Equal(t, uint64(60), s.PeriodFrequency)
			assert.Equal(t, tc.reduction, s.ReductionFactor)

			// Re-encoding the decoded schedule must reproduce the captured bytes.
			assert.Equal(t, info, s.Info())

			params, err := InfoToParameters(info)
			require.NoError(t, err)
			back, err := ParametersToInfo(params)
			require.NoError(t, err)
			assert.Equal(t, info, back)
		})
	}
}

func TestCapturedWireRecords(t *testing.T) {
	t.Run("rate limiter", func(t *testing.T) {
		p := loadParameters(t, "rate_limiter_parameters.hex")
		want := FeeRateLimiter{
			CliffFeeNumerator:  1_000_000,
			FeeIncrementBps:    20,
			MaxLimiterDuration: 300,
			MaxFeeBps:          4_000,
			ReferenceAmount:    5_000_000_000,
		}
		assert.Equal(t, want.Parameters(), p)

		h, err := p.Handler()
		require.NoError(t, err)
		assert.Equal(t, want, h)
	})

	t.Run("time scheduler", func(t *testing.T) {
		p := loadParameters(t, "time_scheduler_exponential_parameters.hex")
		want := FeeTimeScheduler{
			CliffFeeNumerator: 1_000_000,
			NumberOfPeriod:    20,
			PeriodFrequency:   300,
			ReductionFactor:   271,
			Mode:              types.FeeTimeSchedulerExponential,
		}
		assert.Equal(t, want.Parameters(), p)

		h, err := p.Handler()
		require.NoError(t, err)
		assert.Equal(t, want, h)
	})

	t.Run("market cap scheduler", func(t *testing.T) {
		p := loadParameters(t, "market_cap_scheduler_exponential_parameters.hex")
		want := FeeMarketCapScheduler{
			CliffFeeNumerator:           1_000_000,
			NumberOfPeriod:              20,
			SqrtPriceStepBps:            300,
			SchedulerExpirationDuration: 800,
			ReductionFactor:             271,
			Mode:                        types.FeeMarketCapSchedulerExponential,
		}
		assert.Equal(t, want.Parameters(), p)

		h, err := p.Handler()
		require.NoError(t, err)
		assert.Equal(t, want, h)
	})
}

// --- Round trips ---

func sampleSchedules() map[string]interface {
	Parameters() Parameters
	Info() Info
} {
	return map[string]interface {
		Parameters() Parameters
		Info() Info
	}{
		"time linear": FeeTimeScheduler{
			CliffFeeNumerator: 10_000_000, NumberOfPeriod: 10, PeriodFrequency: 60, ReductionFactor: 5, Mode: types.FeeTimeSchedulerLinear,
		},
		"time exponential": FeeTimeScheduler{
			CliffFeeNumerator: 1_000_000, NumberOfPeriod: 20, PeriodFrequency: 300, ReductionFactor: 271, Mode: types.FeeTimeSchedulerExponential,
		},
		"market cap linear": FeeMarketCapScheduler{
			CliffFeeNumerator: 1 << 40, NumberOfPeriod: 0xffff, SqrtPriceStepBps: 0xdeadbeef, SchedulerExpirationDuration: 7, ReductionFactor: 1 << 60, Mode: types.FeeMarketCapSchedulerLinear,
		},
		"market cap exponential": FeeMarketCapScheduler{
			CliffFeeNumerator: 1_000_000, NumberOfPeriod: 20, SqrtPriceStepBps: 300, SchedulerExpirationDuration: 800, ReductionFactor: 271, Mode: types.FeeMarketCapSchedulerExponential,
		},
		"rate limiter": FeeRateLimiter{
			CliffFeeNumerator: 1_000_000, FeeIncrementBps: 20, MaxLimiterDuration: 300, MaxFeeBps: 4_000, ReferenceAmount: 5_000_000_000,
		},
	}
}

func TestRoundTrips(t *testing.T) {
	for name, s := range sampleSchedules() {
		t.Run(name, func(t *testing.T) {
			params := s.Parameters()
			info := s.Info()

			gotInfo, err := ParametersToInfo(params)
			require.NoError(t, err)
			assert.Equal(t, info, gotInfo, "wire to runtime")

			gotParams, err := InfoToParameters(gotInfo)
			require.NoError(t, err)
			assert.Equal(t, params, gotParams, "wire to runtime to wire")

			againInfo, err := ParametersToInfo(gotParams)
			require.NoError(t, err)
			assert.Equal(t, info, againInfo, "runtime to wire to runtime")

			fromParams, err := params.Handler()
			require.NoError(t, err)
			fromInfo, err := info.Handler()
			require.NoError(t, err)
			assert.Equal(t, s, fromParams)
			assert.Equal(t, s, fromInfo)
		})
	}
}

func TestModeTagMatchesFullDecode(t *testing.T) {
	for name, s := range sampleSchedules() {
		t.Run(name, func(t *testing.T) {
			params := s.Parameters()
			info := s.Info()

			fromWire, err := ReadMode(params[:], ParametersModeOffset)
			require.NoError(t, err)
			fromRuntime, err := ReadMode(info[:], InfoModeOffset)
			require.NoError(t, err)
			assert.Equal(t, fromWire, fromRuntime)

			var decoded types.BaseFeeMode
			switch h := s.(type) {
			case FeeTimeScheduler:
				decoded = h.Mode
			case FeeMarketCapScheduler:
				decoded = h.Mode
			case FeeRateLimiter:
				decoded = types.RateLimiter
			}
			assert.Equal(t, decoded, fromWire)
		})
	}
}

func TestReadModeFailures(t *testing.T) {
	_, err := ReadMode(make([]byte, 8), InfoModeOffset)
	require.ErrorIs(t, err, poolerr.ErrUndetermined)

	var info Info
	info[InfoModeOffset] = 5
	_, err = info.Handler()
	require.ErrorIs(t, err, poolerr.ErrInvalidBaseFeeMode)

	var params Parameters
	params[ParametersModeOffset] = 0xff
	_, err = ParametersToInfo(params)
	require.ErrorIs(t, err, poolerr.ErrInvalidBaseFeeMode)
}

func TestUpdateCliffFeeNumerator(t *testing.T) {
	for name, s := range sampleSchedules() {
		t.Run(name, func(t *testing.T) {
			info := s.Info()
			before := info

			require.NoError(t, info.UpdateCliffFeeNumerator(42))
			assert.Equal(t, uint64(42), info.CliffFeeNumerator())
			assert.Equal(t, before[8:], info[8:], "only the cliff bytes may change")
		})
	}

	var bad Info
	bad[InfoModeOffset] = 9
	require.ErrorIs(t, bad.UpdateCliffFeeNumerator(1), poolerr.ErrInvalidBaseFeeMode)
}

func TestTextEncoding(t *testing.T) {
	info := loadInfo(t, "config_account_base_fee_info.hex")
	text, err := info.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, string(readFixture(t, "config_account_base_fee_info.hex")), string(text))

	var short Info
	require.Error(t, short.UnmarshalText([]byte("0x0102")))
}
