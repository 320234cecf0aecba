package cpamm

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
)

func processSwapPartialFill(params processSwapParams) (processSwapResult, error) {
	amountIn, minimumAmountOut := params.amount0, params.amount1

	in, err := params.tokenInFee.ExcludedAmount(amountIn)
	if err != nil {
		return processSwapResult{}, err
	}
	if in.Amount == 0 {
		return processSwapResult{}, errorsmod.Wrap(poolerr.ErrAmountIsZero, "input is consumed by the transfer fee")
	}

	swapResult, err := params.pool.SwapResultFromPartialInput(in.Amount, params.feeMode, params.tradeDirection, params.currentPoint)
	if err != nil {
		return processSwapResult{}, err
	}

	// Only what the curve consumed is transferred in.
	includedTransferFeeAmountIn := amountIn
	if swapResult.AmountLeft > 0 {
		included, err := params.tokenInFee.IncludedAmount(swapResult.IncludedFeeInputAmount)
		if err != nil {
			return processSwapResult{}, err
		}
		includedTransferFeeAmountIn = included.Amount
	}

	out, err := params.tokenOutFee.ExcludedAmount(swapResult.OutputAmount)
	if err != nil {
		return processSwapResult{}, err
	}
	if out.Amount < minimumAmountOut {
		return processSwapResult{}, errorsmod.Wrapf(poolerr.ErrExceededSlippage, "output %d below minimum %d", out.Amount, minimumAmountOut)
	}

	return processSwapResult{
		swapResult:                   swapResult,
		includedTransferFeeAmountIn:  includedTransferFeeAmountIn,
		includedTransferFeeAmountOut: swapResult.OutputAmount,
		excludedTransferFeeAmountOut: out.Amount,
	}, nil
}
