package cpamm

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/transferfee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// processSwapParams is one mode-specific leg of the pipeline.
type processSwapParams struct {
	pool           *Pool
	tokenInFee     transferfee.Config
	tokenOutFee    transferfee.Config
	feeMode        FeeMode
	tradeDirection types.TradeDirection
	currentPoint   uint64
	amount0        uint64
	amount1        uint64
}

// processSwapResult carries the swap result and the gross and net token movements.
type processSwapResult struct {
	swapResult                   SwapResult2
	includedTransferFeeAmountIn  uint64
	includedTransferFeeAmountOut uint64
	excludedTransferFeeAmountOut uint64
}

func processSwapExactIn(params processSwapParams) (processSwapResult, error) {
	amountIn, minimumAmountOut := params.amount0, params.amount1

	in, err := params.tokenInFee.ExcludedAmount(amountIn)
	if err != nil {
		return processSwapResult{}, err
	}
	if in.Amount == 0 {
		return processSwapResult{}, errorsmod.Wrap(poolerr.ErrAmountIsZero, "input is consumed by the transfer fee")
	}

	swapResult, err := params.pool.SwapResultFromExactInput(in.Amount, params.feeMode, params.tradeDirection, params.currentPoint)
	if err != nil {
		return processSwapResult{}, err
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
		includedTransferFeeAmountIn:  amountIn,
		includedTransferFeeAmountOut: swapResult.OutputAmount,
		excludedTransferFeeAmountOut: out.Amount,
	}, nil
}
