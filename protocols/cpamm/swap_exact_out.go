package cpamm

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
)

func processSwapExactOut(params processSwapParams) (processSwapResult, error) {
	amountOut, maximumAmountIn := params.amount0, params.amount1

	out, err := params.tokenOutFee.IncludedAmount(amountOut)
	if err != nil {
		return processSwapResult{}, err
	}
	if out.Amount == 0 {
		return processSwapResult{}, errorsmod.Wrap(poolerr.ErrAmountIsZero, "output amount")
	}

	swapResult, err := params.pool.SwapResultFromExactOutput(out.Amount, params.feeMode, params.tradeDirection, params.currentPoint)
	if err != nil {
		return processSwapResult{}, err
	}

	in, err := params.tokenInFee.IncludedAmount(swapResult.IncludedFeeInputAmount)
	if err != nil {
		return processSwapResult{}, err
	}
	if in.Amount > maximumAmountIn {
		return processSwapResult{}, errorsmod.Wrapf(poolerr.ErrExceededSlippage, "input %d above maximum %d", in.Amount, maximumAmountIn)
	}

	return processSwapResult{
		swapResult:                   swapResult,
		includedTransferFeeAmountIn:  in.Amount,
		includedTransferFeeAmountOut: out.Amount,
		excludedTransferFeeAmountOut: amountOut,
	}, nil
}
