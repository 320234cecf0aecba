package storage

import (
	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// SwapRecord is the persisted form of one committed swap.
type SwapRecord struct {
	// ID is assigned by the writer and increases with every stored swap.
	ID             uint64
	Pool           types.Pubkey
	TradeDirection types.TradeDirection
	CollectFeeMode types.CollectFeeMode
	SwapMode       uint8
	HasReferral    bool

	Amount0 uint64
	Amount1 uint64

	// AmountIn includes the input transfer fee; AmountOut excludes the output transfer fee.
	AmountIn   uint64
	AmountOut  uint64
	AmountLeft uint64

	TradingFee  uint64
	ProtocolFee uint64
	PartnerFee  uint64
	ReferralFee uint64

	// NextSqrtPrice is a decimal Q64 value.
	NextSqrtPrice string
	ReserveA      uint64
	ReserveB      uint64
	Timestamp     uint64
}

// NewSwapRecord flattens a swap event into a record with the given ID.
func NewSwapRecord(id uint64, evt cpamm.EvtSwap2) *SwapRecord {
	r := &SwapRecord{
		ID:             id,
		Pool:           evt.Pool,
		TradeDirection: evt.TradeDirection,
		CollectFeeMode: evt.CollectFeeMode,
		SwapMode:       evt.Params.SwapMode,
		HasReferral:    evt.HasReferral,
		Amount0:        evt.Params.Amount0,
		Amount1:        evt.Params.Amount1,
		AmountIn:       evt.IncludedTransferFeeAmountIn,
		AmountOut:      evt.ExcludedTransferFeeAmountOut,
		AmountLeft:     evt.SwapResult.AmountLeft,
		TradingFee:     evt.SwapResult.TradingFee,
		ProtocolFee:    evt.SwapResult.ProtocolFee,
		PartnerFee:     evt.SwapResult.PartnerFee,
		ReferralFee:    evt.SwapResult.ReferralFee,
		ReserveA:       evt.ReserveAAmount,
		ReserveB:       evt.ReserveBAmount,
		Timestamp:      evt.CurrentTimestamp,
	}
	if evt.SwapResult.NextSqrtPrice != nil {
		r.NextSqrtPrice = evt.SwapResult.NextSqrtPrice.Dec()
	}
	return r
}

// Validate rejects records that cannot be stored.
func (r *SwapRecord) Validate() error {
	if r == nil || r.ID == 0 || r.Pool.IsZero() {
		return ErrInvalidInput
	}
	return nil
}
