package cpamm

import (
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// EvtSwap2 is emitted once per committed swap.
type EvtSwap2 struct {
	Pool                         types.Pubkey         `json:"pool"`
	TradeDirection               types.TradeDirection `json:"tradeDirection"`
	CollectFeeMode               types.CollectFeeMode `json:"collectFeeMode"`
	HasReferral                  bool                 `json:"hasReferral"`
	Params                       SwapParameters2      `json:"params"`
	SwapResult                   SwapResult2          `json:"swapResult"`
	CurrentTimestamp             uint64               `json:"currentTimestamp"`
	IncludedTransferFeeAmountIn  uint64               `json:"includedTransferFeeAmountIn"`
	IncludedTransferFeeAmountOut uint64               `json:"includedTransferFeeAmountOut"`
	ExcludedTransferFeeAmountOut uint64               `json:"excludedTransferFeeAmountOut"`
	ReserveAAmount               uint64               `json:"reserveAAmount"`
	ReserveBAmount               uint64               `json:"reserveBAmount"`
}

// EvtUpdatePoolFees is emitted after an administrative fee change is committed.
type EvtUpdatePoolFees struct {
	Pool     types.Pubkey             `json:"pool"`
	Operator types.Pubkey             `json:"operator"`
	Params   UpdatePoolFeesParameters `json:"params"`
}
