package basefee

import (
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// Layout sizes and the fixed offsets of the mode tag in each form.
const (
	ParametersSize       = 30
	ParametersModeOffset = 26

	InfoSize       = 32
	InfoModeOffset = 8
)

// Parameters is the wire form of a base fee: packed little-endian fields, mode tag at byte 26.
//
//	time scheduler   cliff u64 | number_of_period u16 | period_frequency u64 | reduction_factor u64 | mode | pad[3]
//	market cap       cliff u64 | number_of_period u16 | sqrt_price_step_bps u32 | expiration u32 | reduction_factor u64 | mode | pad[3]
//	rate limiter     cliff u64 | fee_increment_bps u16 | max_limiter_duration u32 | max_fee_bps u32 | reference_amount u64 | mode | pad[3]
type Parameters [ParametersSize]byte

// Info is the runtime form embedded in pool and config records, naturally aligned, mode tag at byte 8.
//
//	time scheduler   cliff u64 | mode | pad[5] | number_of_period u16 | period_frequency u64 | reduction_factor u64
//	market cap       cliff u64 | mode | pad[5] | number_of_period u16 | sqrt_price_step_bps u32 | expiration u32 | reduction_factor u64
//	rate limiter     cliff u64 | mode | pad[5] | fee_increment_bps u16 | max_limiter_duration u32 | max_fee_bps u32 | reference_amount u64
type Info [InfoSize]byte

var le = binary.LittleEndian

// ReadMode reads the mode tag at offset without decoding the rest of the record.
func ReadMode(b []byte, offset int) (types.BaseFeeMode, error) {
	if offset < 0 || offset >= len(b) {
		return 0, errorsmod.Wrapf(poolerr.ErrUndetermined, "no mode byte at offset %d of %d-byte record", offset, len(b))
	}
	mode, ok := types.BaseFeeModeFromByte(b[offset])
	if !ok {
		return 0, errorsmod.Wrapf(poolerr.ErrInvalidBaseFeeMode, "mode byte %d", b[offset])
	}
	return mode, nil
}

// --- Parameters ---

// Mode reads the tag at ParametersModeOffset.
func (p Parameters) Mode() (types.BaseFeeMode, error) {
	return ReadMode(p[:], ParametersModeOffset)
}

// Handler decodes the wire record into its concrete schedule.
func (p Parameters) Handler() (Handler, error) {
	info, err := ParametersToInfo(p)
	if err != nil {
		return nil, err
	}
	return info.Handler()
}

func (p Parameters) MarshalText() ([]byte, error) {
	return []byte(hexutil.Encode(p[:])), nil
}

func (p *Parameters) UnmarshalText(text []byte) error {
	return unmarshalFixed(p[:], text)
}

// --- Info ---

// Mode reads the tag at InfoModeOffset.
func (i Info) Mode() (types.BaseFeeMode, error) {
	return ReadMode(i[:], InfoModeOffset)
}

// Handler reads the runtime record as its concrete schedule, selected by an explicit match on the tag.
func (i Info) Handler() (Handler, error) {
	mode, err := i.Mode()
	if err != nil {
		return nil, err
	}
	switch mode {
	case types.FeeTimeSchedulerLinear, types.FeeTimeSchedulerExponential:
		return decodeTimeSchedulerInfo(i, mode), nil
	case types.RateLimiter:
		return decodeRateLimiterInfo(i), nil
	case types.FeeMarketCapSchedulerLinear, types.FeeMarketCapSchedulerExponential:
		return decodeMarketCapSchedulerInfo(i, mode), nil
	default:
		return nil, errorsmod.Wrapf(poolerr.ErrInvalidBaseFeeMode, "mode %d", mode)
	}
}

// CliffFeeNumerator reads the shared cliff field.
func (i Info) CliffFeeNumerator() uint64 {
	return le.Uint64(i[0:8])
}

// UpdateCliffFeeNumerator rewrites the cliff in place. It is the only field-level edit
// the runtime form permits, and requires a recognised mode tag.
func (i *Info) UpdateCliffFeeNumerator(cliffFeeNumerator uint64) error {
	if _, err := i.Mode(); err != nil {
		return err
	}
	le.PutUint64(i[0:8], cliffFeeNumerator)
	return nil
}

func (i Info) MarshalText() ([]byte, error) {
	return []byte(hexutil.Encode(i[:])), nil
}

func (i *Info) UnmarshalText(text []byte) error {
	return unmarshalFixed(i[:], text)
}

func unmarshalFixed(dst []byte, text []byte) error {
	raw, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return errorsmod.Wrapf(poolerr.ErrUndetermined, "expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

// --- Transcoding ---

// ParametersToInfo fully decodes a wire record and re-encodes it in the runtime layout.
func ParametersToInfo(p Parameters) (Info, error) {
	mode, err := p.Mode()
	if err != nil {
		return Info{}, err
	}
	switch mode {
	case types.FeeTimeSchedulerLinear, types.FeeTimeSchedulerExponential:
		return decodeTimeSchedulerParameters(p, mode).Info(), nil
	case types.RateLimiter:
		return decodeRateLimiterParameters(p).Info(), nil
	case types.FeeMarketCapSchedulerLinear, types.FeeMarketCapSchedulerExponential:
		return decodeMarketCapSchedulerParameters(p, mode).Info(), nil
	default:
		return Info{}, errorsmod.Wrapf(poolerr.ErrInvalidBaseFeeMode, "mode %d", mode)
	}
}

// InfoToParameters is the inverse of ParametersToInfo.
func InfoToParameters(i Info) (Parameters, error) {
	mode, err := i.Mode()
	if err != nil {
		return Parameters{}, err
	}
	switch mode {
	case types.FeeTimeSchedulerLinear, types.FeeTimeSchedulerExponential:
		return decodeTimeSchedulerInfo(i, mode).Parameters(), nil
	case types.RateLimiter:
		return decodeRateLimiterInfo(i).Parameters(), nil
	case types.FeeMarketCapSchedulerLinear, types.FeeMarketCapSchedulerExponential:
		return decodeMarketCapSchedulerInfo(i, mode).Parameters(), nil
	default:
		return Parameters{}, errorsmod.Wrapf(poolerr.ErrInvalidBaseFeeMode, "mode %d", mode)
	}
}

// --- Time scheduler ---

func (s FeeTimeScheduler) Parameters() Parameters {
	var p Parameters
	le.PutUint64(p[0:8], s.CliffFeeNumerator)
	le.PutUint16(p[8:10], s.NumberOfPeriod)
	le.PutUint64(p[10:18], s.PeriodFrequency)
	le.PutUint64(p[18:26], s.ReductionFactor)
	p[ParametersModeOffset] = uint8(s.Mode)
	return p
}

func (s FeeTimeScheduler) Info() Info {
	var i Info
	le.PutUint64(i[0:8], s.CliffFeeNumerator)
	i[InfoModeOffset] = uint8(s.Mode)
	le.PutUint16(i[14:16], s.NumberOfPeriod)
	le.PutUint64(i[16:24], s.PeriodFrequency)
	le.PutUint64(i[24:32], s.ReductionFactor)
	return i
}

func decodeTimeSchedulerParameters(p Parameters, mode types.BaseFeeMode) FeeTimeScheduler {
	return FeeTimeScheduler{
		CliffFeeNumerator: le.Uint64(p[0:8]),
		NumberOfPeriod:    le.Uint16(p[8:10]),
		PeriodFrequency:   le.Uint64(p[10:18]),
		ReductionFactor:   le.Uint64(p[18:26]),
		Mode:              mode,
	}
}

func decodeTimeSchedulerInfo(i Info, mode types.BaseFeeMode) FeeTimeScheduler {
	return FeeTimeScheduler{
		CliffFeeNumerator: le.Uint64(i[0:8]),
		NumberOfPeriod:    le.Uint16(i[14:16]),
		PeriodFrequency:   le.Uint64(i[16:24]),
		ReductionFactor:   le.Uint64(i[24:32]),
		Mode:              mode,
	}
}

// --- Market cap scheduler ---

func (s FeeMarketCapScheduler) Parameters() Parameters {
	var p Parameters
	le.PutUint64(p[0:8], s.CliffFeeNumerator)
	le.PutUint16(p[8:10], s.NumberOfPeriod)
	le.PutUint32(p[10:14], s.SqrtPriceStepBps)
	le.PutUint32(p[14:18], s.SchedulerExpirationDuration)
	le.PutUint64(p[18:26], s.ReductionFactor)
	p[ParametersModeOffset] = uint8(s.Mode)
	return p
}

func (s FeeMarketCapScheduler) Info() Info {
	var i Info
	le.PutUint64(i[0:8], s.CliffFeeNumerator)
	i[InfoModeOffset] = uint8(s.Mode)
	le.PutUint16(i[14:16], s.NumberOfPeriod)
	le.PutUint32(i[16:20], s.SqrtPriceStepBps)
	le.PutUint32(i[20:24], s.SchedulerExpirationDuration)
	le.PutUint64(i[24:32], s.ReductionFactor)
	return i
}

func decodeMarketCapSchedulerParameters(p Parameters, mode types.BaseFeeMode) FeeMarketCapScheduler {
	return FeeMarketCapScheduler{
		CliffFeeNumerator:           le.Uint64(p[0:8]),
		NumberOfPeriod:              le.Uint16(p[8:10]),
		SqrtPriceStepBps:            le.Uint32(p[10:14]),
		SchedulerExpirationDuration: le.Uint32(p[14:18]),
		ReductionFactor:             le.Uint64(p[18:26]),
		Mode:                        mode,
	}
}

func decodeMarketCapSchedulerInfo(i Info, mode types.BaseFeeMode) FeeMarketCapScheduler {
	return FeeMarketCapScheduler{
		CliffFeeNumerator:           le.Uint64(i[0:8]),
		NumberOfPeriod:              le.Uint16(i[14:16]),
		SqrtPriceStepBps:            le.Uint32(i[16:20]),
		SchedulerExpirationDuration: le.Uint32(i[20:24]),
		ReductionFactor:             le.Uint64(i[24:32]),
		Mode:                        mode,
	}
}

// --- Rate limiter ---

func (r FeeRateLimiter) Parameters() Parameters {
	var p Parameters
	le.PutUint64(p[0:8], r.CliffFeeNumerator)
	le.PutUint16(p[8:10], r.FeeIncrementBps)
	le.PutUint32(p[10:14], r.MaxLimiterDuration)
	le.PutUint32(p[14:18], r.MaxFeeBps)
	le.PutUint64(p[18:26], r.ReferenceAmount)
	p[ParametersModeOffset] = uint8(types.RateLimiter)
	return p
}

func (r FeeRateLimiter) Info() Info {
	var i Info
	le.PutUint64(i[0:8], r.CliffFeeNumerator)
	i[InfoModeOffset] = uint8(types.RateLimiter)
	le.PutUint16(i[14:16], r.FeeIncrementBps)
	le.PutUint32(i[16:20], r.MaxLimiterDuration)
	le.PutUint32(i[20:24], r.MaxFeeBps)
	le.PutUint64(i[24:32], r.ReferenceAmount)
	return i
}

func decodeRateLimiterParameters(p Parameters) FeeRateLimiter {
	return FeeRateLimiter{
		CliffFeeNumerator:  le.Uint64(p[0:8]),
		FeeIncrementBps:    le.Uint16(p[8:10]),
		MaxLimiterDuration: le.Uint32(p[10:14]),
		MaxFeeBps:          le.Uint32(p[14:18]),
		ReferenceAmount:    le.Uint64(p[18:26]),
	}
}

func decodeRateLimiterInfo(i Info) FeeRateLimiter {
	return FeeRateLimiter{
		CliffFeeNumerator:  le.Uint64(i[0:8]),
		FeeIncrementBps:    le.Uint16(i[14:16]),
		MaxLimiterDuration: le.Uint32(i[16:20]),
		MaxFeeBps:          le.Uint32(i[20:24]),
		ReferenceAmount:    le.Uint64(i[24:32]),
	}
}
