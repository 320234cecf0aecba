// Package types defines the enumerations and identities shared across the cpamm packages.
package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// TradeDirection is which leg of the pool is being sold.
type TradeDirection uint8

const (
	AtoB TradeDirection = iota
	BtoA
)

func (d TradeDirection) String() string {
	switch d {
	case AtoB:
		return "a_to_b"
	case BtoA:
		return "b_to_a"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// CollectFeeMode is the pool policy for which leg fees are taken in.
type CollectFeeMode uint8

const (
	BothToken CollectFeeMode = iota
	OnlyB
)

// CollectFeeModeFromByte rejects values outside the known modes.
func CollectFeeModeFromByte(b uint8) (CollectFeeMode, bool) {
	if b > uint8(OnlyB) {
		return 0, false
	}
	return CollectFeeMode(b), true
}

// ActivationType decides whether points are slots or unix timestamps.
type ActivationType uint8

const (
	ActivationSlot ActivationType = iota
	ActivationTimestamp
)

// SwapMode selects the pipeline a swap request runs through.
type SwapMode uint8

const (
	ExactIn SwapMode = iota
	PartialFill
	ExactOut
)

// SwapModeFromByte rejects values outside the known modes.
func SwapModeFromByte(b uint8) (SwapMode, bool) {
	if b > uint8(ExactOut) {
		return 0, false
	}
	return SwapMode(b), true
}

func (m SwapMode) String() string {
	switch m {
	case ExactIn:
		return "exact_in"
	case PartialFill:
		return "partial_fill"
	case ExactOut:
		return "exact_out"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// BaseFeeMode is the tag selecting a fee-schedule variant.
type BaseFeeMode uint8

const (
	FeeTimeSchedulerLinear BaseFeeMode = iota
	FeeTimeSchedulerExponential
	RateLimiter
	FeeMarketCapSchedulerLinear
	FeeMarketCapSchedulerExponential
)

// BaseFeeModeFromByte rejects values outside the known modes.
func BaseFeeModeFromByte(b uint8) (BaseFeeMode, bool) {
	if b > uint8(FeeMarketCapSchedulerExponential) {
		return 0, false
	}
	return BaseFeeMode(b), true
}

func (m BaseFeeMode) String() string {
	switch m {
	case FeeTimeSchedulerLinear:
		return "fee_time_scheduler_linear"
	case FeeTimeSchedulerExponential:
		return "fee_time_scheduler_exponential"
	case RateLimiter:
		return "rate_limiter"
	case FeeMarketCapSchedulerLinear:
		return "fee_market_cap_scheduler_linear"
	case FeeMarketCapSchedulerExponential:
		return "fee_market_cap_scheduler_exponential"
	default:
		return fmt.Sprintf("base_fee_mode(%d)", uint8(m))
	}
}

// --- Pubkey ---

// PubkeyLength is the byte size of an account key.
const PubkeyLength = 32

// Pubkey is a 32-byte account identity, rendered in base58.
type Pubkey [PubkeyLength]byte

// ParsePubkey decodes a base58 account key.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(raw) != PubkeyLength {
		return pk, fmt.Errorf("decode pubkey %q: expected %d bytes, got %d", s, PubkeyLength, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePubkey is ParsePubkey for constants and tests.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

func (pk Pubkey) IsZero() bool {
	return pk == Pubkey{}
}

func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

func (pk *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
