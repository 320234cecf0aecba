package cpamm

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// FeeMode says where the trading fee of one swap is taken.
type FeeMode struct {
	// FeesOnInput takes the fee from the input before the curve, otherwise from the output.
	FeesOnInput  bool `json:"feesOnInput"`
	FeesOnTokenA bool `json:"feesOnTokenA"`
	HasReferral  bool `json:"hasReferral"`
}

// ResolveFeeMode maps the pool's collect mode and the trade direction to a FeeMode.
//
//	BothToken  AtoB  fee on output, token B
//	BothToken  BtoA  fee on output, token A
//	OnlyB      AtoB  fee on output, token B
//	OnlyB      BtoA  fee on input,  token B
func ResolveFeeMode(collectFeeMode types.CollectFeeMode, direction types.TradeDirection, hasReferral bool) (FeeMode, error) {
	var feesOnInput, feesOnTokenA bool
	switch collectFeeMode {
	case types.BothToken:
		switch direction {
		case types.AtoB:
		case types.BtoA:
			feesOnTokenA = true
		default:
			return FeeMode{}, errorsmod.Wrapf(poolerr.ErrInvalidInput, "trade direction %d", direction)
		}
	case types.OnlyB:
		switch direction {
		case types.AtoB:
		case types.BtoA:
			feesOnInput = true
		default:
			return FeeMode{}, errorsmod.Wrapf(poolerr.ErrInvalidInput, "trade direction %d", direction)
		}
	default:
		return FeeMode{}, errorsmod.Wrapf(poolerr.ErrTypeCastFailed, "collect fee mode %d", collectFeeMode)
	}
	return FeeMode{
		FeesOnInput:  feesOnInput,
		FeesOnTokenA: feesOnTokenA,
		HasReferral:  hasReferral,
	}, nil
}
