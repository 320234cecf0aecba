package basefee

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

func marketCapExample() FeeMarketCapScheduler {
	return FeeMarketCapScheduler{
		CliffFeeNumerator:           1_000_000,
		NumberOfPeriod:              20,
		SqrtPriceStepBps:            300,
		SchedulerExpirationDuration: 800,
		ReductionFactor:             1_000,
		Mode:                        types.FeeMarketCapSchedulerLinear,
	}
}

func TestFeeMarketCapScheduler_PriceDrivenPeriods(t *testing.T) {
	const activation = uint64(1_000)
	s := marketCapExample()
	init := new(uint256.Int).Lsh(uint256.NewInt(10_000), 32)

	priceAt := func(bps uint64) *uint256.Int {
		return new(uint256.Int).Lsh(uint256.NewInt(10_000+bps), 32)
	}

	cases := []struct {
		name    string
		current uint64
		price   *uint256.Int
		want    uint64
	}{
		{"no price movement keeps cliff", activation + 10, init, 1_000_000},
		{"price below init keeps cliff", activation + 10, new(uint256.Int).Rsh(init, 1), 1_000_000},
		{"one step short of the first period", activation + 10, priceAt(299), 1_000_000},
		{"two steps of growth", activation + 10, priceAt(600), 998_000},
		{"growth beyond the last period clamps", activation + 10, priceAt(300 * 50), 980_000},
		{"expired scheduler is fully discounted", activation + 801, init, 980_000},
		{"before activation is fully discounted", activation - 1, init, 980_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, err := s.FeeNumeratorFromIncludedAmount(FeeQuery{
				CurrentPoint:     tc.current,
				ActivationPoint:  activation,
				InitSqrtPrice:    init,
				CurrentSqrtPrice: tc.price,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, fee)
		})
	}
}

func TestFeeMarketCapScheduler_Validate(t *testing.T) {
	require.NoError(t, marketCapExample().Validate(types.BothToken, types.ActivationSlot))

	missing := marketCapExample()
	missing.SqrtPriceStepBps = 0
	require.ErrorIs(t, missing.Validate(types.BothToken, types.ActivationSlot), poolerr.ErrInvalidFeeMarketCapScheduler)

	tooLow := marketCapExample()
	tooLow.ReductionFactor = 46_000
	require.ErrorIs(t, tooLow.Validate(types.BothToken, types.ActivationSlot), poolerr.ErrExceedMaxFeeBps)
}

func TestFeeMarketCapScheduler_IsStatic(t *testing.T) {
	s := marketCapExample()
	static, err := s.IsStatic(800, 0)
	require.NoError(t, err)
	assert.False(t, static)

	static, err = s.IsStatic(801, 0)
	require.NoError(t, err)
	assert.True(t, static)
}
