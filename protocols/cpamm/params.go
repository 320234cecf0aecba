package cpamm

import (
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// SwapParameters2 is a swap request.
// For ExactIn and PartialFill, Amount0 is the input and Amount1 the minimum output.
// For ExactOut, Amount0 is the output and Amount1 the maximum input.
type SwapParameters2 struct {
	Amount0  uint64 `json:"amount0"`
	Amount1  uint64 `json:"amount1"`
	SwapMode uint8  `json:"swapMode"`
}

// Mode parses SwapMode, rejecting unknown values.
func (p SwapParameters2) Mode() (types.SwapMode, error) {
	mode, ok := types.SwapModeFromByte(p.SwapMode)
	if !ok {
		return 0, errorsmod.Wrapf(poolerr.ErrInvalidInput, "swap mode %d", p.SwapMode)
	}
	return mode, nil
}

// swapParameters2Size is the borsh encoding length of SwapParameters2.
const swapParameters2Size = 17

// MarshalBinary encodes the parameters the way the swap2 instruction carries them.
func (p SwapParameters2) MarshalBinary() ([]byte, error) {
	b := make([]byte, swapParameters2Size)
	binary.LittleEndian.PutUint64(b[0:8], p.Amount0)
	binary.LittleEndian.PutUint64(b[8:16], p.Amount1)
	b[16] = p.SwapMode
	return b, nil
}

// SwapParameters is the legacy exact-input request.
type SwapParameters struct {
	AmountIn         uint64 `json:"amountIn"`
	MinimumAmountOut uint64 `json:"minimumAmountOut"`
}

// ToSwapParameters2 converts the legacy request into an ExactIn request.
func (p SwapParameters) ToSwapParameters2() SwapParameters2 {
	return SwapParameters2{
		Amount0:  p.AmountIn,
		Amount1:  p.MinimumAmountOut,
		SwapMode: uint8(types.ExactIn),
	}
}

// UpdatePoolFeesParameters is an administrative fee change.
// A nil CliffFeeNumerator skips the base fee. A nil DynamicFee skips the dynamic fee,
// a zero DynamicFee disables it and anything else enables or updates it.
type UpdatePoolFeesParameters struct {
	CliffFeeNumerator *uint64               `json:"cliffFeeNumerator,omitempty"`
	DynamicFee        *DynamicFeeParameters `json:"dynamicFee,omitempty"`
}

// Validate requires at least one change and a valid dynamic fee when one is enabled.
func (p UpdatePoolFeesParameters) Validate() error {
	if p.CliffFeeNumerator == nil && p.DynamicFee == nil {
		return errorsmod.Wrap(poolerr.ErrInvalidUpdatePoolFeesParameters, "nothing to update")
	}
	if p.DynamicFee != nil && !p.DynamicFee.IsZero() {
		return p.DynamicFee.Validate()
	}
	return nil
}
