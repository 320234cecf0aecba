// Package constants holds protocol-wide fee and price bounds.
package constants

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
)

const (
	// FeeDenominator is the fixed denominator every fee numerator is expressed over.
	FeeDenominator uint64 = 1_000_000_000

	MaxBasisPoint uint64 = 10_000

	MinFeeBps         uint64 = 1
	MinFeeNumerator   uint64 = 100_000
	MaxFeeBpsV0       uint64 = 5_000
	MaxFeeNumeratorV0 uint64 = 500_000_000
	MaxFeeBpsV1       uint64 = 9_900
	MaxFeeNumeratorV1 uint64 = 990_000_000

	// MaxFeeNumeratorPostUpdate caps an administrative cliff fee update.
	MaxFeeNumeratorPostUpdate uint64 = 100_000_000

	CurrentPoolVersion uint8 = 1

	ProtocolFeePercent uint8 = 20
	HostFeePercent     uint8 = 20
	PartnerFeePercent  uint8 = 0

	ScaleOffset    = 64
	LiquidityScale = 128

	// MaxExponential bounds the exponent accepted by the Q64 pow.
	MaxExponential uint32 = 0x80000

	MaxRateLimiterDurationInSeconds uint32 = 43_200
	MaxRateLimiterDurationInSlots   uint32 = 108_000

	// Dynamic fee defaults.
	BinStepBpsDefault             uint16 = 1
	DynamicFeeFilterPeriodDefault uint16 = 10
	DynamicFeeDecayPeriodDefault  uint16 = 120
	DynamicFeeReductionFactor     uint16 = 5_000
	DynamicFeeScalingFactor       uint64 = 100_000_000_000
)

var (
	// OneQ64 is 1.0 in Q64.64.
	OneQ64 = new(uint256.Int).Lsh(uint256.NewInt(1), ScaleOffset)

	MinSqrtPrice = uint256.NewInt(4_295_048_016)
	MaxSqrtPrice = uint256.MustFromDecimal("79226673521066979257578248091")

	// BinStepBpsU128Default is BinStepBpsDefault expressed in Q64.
	BinStepBpsU128Default = uint256.NewInt(1_844_674_407_370_955)

	// U128Max is the largest value a 128-bit field may hold.
	U128Max = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
)

// MaxFeeNumerator returns the fee cap for a pool layout version.
func MaxFeeNumerator(poolVersion uint8) (uint64, error) {
	switch poolVersion {
	case 0:
		return MaxFeeNumeratorV0, nil
	case 1:
		return MaxFeeNumeratorV1, nil
	default:
		return 0, errorsmod.Wrapf(poolerr.ErrInvalidPoolVersion, "version %d", poolVersion)
	}
}

// MaxFeeBps returns the fee cap in basis points for a pool layout version.
func MaxFeeBps(poolVersion uint8) (uint64, error) {
	switch poolVersion {
	case 0:
		return MaxFeeBpsV0, nil
	case 1:
		return MaxFeeBpsV1, nil
	default:
		return 0, errorsmod.Wrapf(poolerr.ErrInvalidPoolVersion, "version %d", poolVersion)
	}
}
