package cpamm

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/basefee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/curvemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/feemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// SwapResult2 is the settled outcome of one swap before it is applied to the pool.
type SwapResult2 struct {
	IncludedFeeInputAmount uint64       `json:"includedFeeInputAmount"`
	ExcludedFeeInputAmount uint64       `json:"excludedFeeInputAmount"`
	AmountLeft             uint64       `json:"amountLeft"`
	OutputAmount           uint64       `json:"outputAmount"`
	NextSqrtPrice          *uint256.Int `json:"nextSqrtPrice"`
	TradingFee             uint64       `json:"tradingFee"`
	ProtocolFee            uint64       `json:"protocolFee"`
	PartnerFee             uint64       `json:"partnerFee"`
	ReferralFee            uint64       `json:"referralFee"`
}

func (r *SwapResult2) setFees(s SplitFees) {
	r.TradingFee = s.TradingFee
	r.ProtocolFee = s.ProtocolFee
	r.PartnerFee = s.PartnerFee
	r.ReferralFee = s.ReferralFee
}

// TotalFee is every fee taken by the swap.
func (r SwapResult2) TotalFee() uint64 {
	return r.TradingFee + r.ProtocolFee + r.PartnerFee + r.ReferralFee
}

func (p *Pool) feeQuery(currentPoint, amount uint64, direction types.TradeDirection) basefee.FeeQuery {
	return basefee.FeeQuery{
		CurrentPoint:     currentPoint,
		ActivationPoint:  p.ActivationPoint,
		TradeDirection:   direction,
		Amount:           amount,
		InitSqrtPrice:    cloneInt(p.PoolFees.InitSqrtPrice),
		CurrentSqrtPrice: cloneInt(p.SqrtPrice),
	}
}

// --- Exact input ---

// SwapResultFromExactInput sells all of amountIn, failing if the curve would leave the price range.
func (p *Pool) SwapResultFromExactInput(amountIn uint64, feeMode FeeMode, direction types.TradeDirection, currentPoint uint64) (SwapResult2, error) {
	maxFeeNumerator, err := constants.MaxFeeNumerator(p.Version)
	if err != nil {
		return SwapResult2{}, err
	}
	tradeFeeNumerator, err := p.PoolFees.TotalTradingFeeFromIncludedAmount(p.feeQuery(currentPoint, amountIn, direction), maxFeeNumerator)
	if err != nil {
		return SwapResult2{}, err
	}

	result := SwapResult2{IncludedFeeInputAmount: amountIn}
	actualAmountIn := amountIn
	if feeMode.FeesOnInput {
		onAmount, err := p.PoolFees.FeeOnAmount(amountIn, tradeFeeNumerator, feeMode.HasReferral, p.HasPartner())
		if err != nil {
			return SwapResult2{}, err
		}
		actualAmountIn = onAmount.Amount
		result.setFees(onAmount.SplitFees)
	}

	var outputAmount uint64
	var nextSqrtPrice *uint256.Int
	switch direction {
	case types.AtoB:
		outputAmount, nextSqrtPrice, err = p.aToBFromAmountIn(actualAmountIn)
	case types.BtoA:
		outputAmount, nextSqrtPrice, err = p.bToAFromAmountIn(actualAmountIn)
	default:
		err = errorsmod.Wrapf(poolerr.ErrInvalidInput, "trade direction %d", direction)
	}
	if err != nil {
		return SwapResult2{}, err
	}

	if !feeMode.FeesOnInput {
		onAmount, err := p.PoolFees.FeeOnAmount(outputAmount, tradeFeeNumerator, feeMode.HasReferral, p.HasPartner())
		if err != nil {
			return SwapResult2{}, err
		}
		outputAmount = onAmount.Amount
		result.setFees(onAmount.SplitFees)
	}

	result.ExcludedFeeInputAmount = actualAmountIn
	result.OutputAmount = outputAmount
	result.NextSqrtPrice = nextSqrtPrice
	return result, nil
}

func (p *Pool) aToBFromAmountIn(amountIn uint64) (uint64, *uint256.Int, error) {
	next, err := curvemath.GetNextSqrtPriceFromInput(p.SqrtPrice, p.Liquidity, amountIn, true)
	if err != nil {
		return 0, nil, err
	}
	if next.Lt(p.SqrtMinPrice) {
		return 0, nil, errorsmod.Wrapf(poolerr.ErrPriceRangeViolation, "next sqrt price %s below %s", next, p.SqrtMinPrice)
	}
	out, err := curvemath.GetDeltaAmountB(next, p.SqrtPrice, p.Liquidity, safemath.Down)
	if err != nil {
		return 0, nil, err
	}
	return out, next, nil
}

func (p *Pool) bToAFromAmountIn(amountIn uint64) (uint64, *uint256.Int, error) {
	next, err := curvemath.GetNextSqrtPriceFromInput(p.SqrtPrice, p.Liquidity, amountIn, false)
	if err != nil {
		return 0, nil, err
	}
	if next.Gt(p.SqrtMaxPrice) {
		return 0, nil, errorsmod.Wrapf(poolerr.ErrPriceRangeViolation, "next sqrt price %s above %s", next, p.SqrtMaxPrice)
	}
	out, err := curvemath.GetDeltaAmountA(p.SqrtPrice, next, p.Liquidity, safemath.Down)
	if err != nil {
		return 0, nil, err
	}
	return out, next, nil
}

// --- Partial input ---

// SwapResultFromPartialInput sells as much of amountIn as the price range allows and
// reports the unsold remainder in AmountLeft.
func (p *Pool) SwapResultFromPartialInput(amountIn uint64, feeMode FeeMode, direction types.TradeDirection, currentPoint uint64) (SwapResult2, error) {
	maxFeeNumerator, err := constants.MaxFeeNumerator(p.Version)
	if err != nil {
		return SwapResult2{}, err
	}
	tradeFeeNumerator, err := p.PoolFees.TotalTradingFeeFromIncludedAmount(p.feeQuery(currentPoint, amountIn, direction), maxFeeNumerator)
	if err != nil {
		return SwapResult2{}, err
	}

	var result SwapResult2
	actualAmountIn := amountIn
	if feeMode.FeesOnInput {
		onAmount, err := p.PoolFees.FeeOnAmount(amountIn, tradeFeeNumerator, feeMode.HasReferral, p.HasPartner())
		if err != nil {
			return SwapResult2{}, err
		}
		actualAmountIn = onAmount.Amount
		result.setFees(onAmount.SplitFees)
	}

	var outputAmount, amountLeft uint64
	var nextSqrtPrice *uint256.Int
	switch direction {
	case types.AtoB:
		outputAmount, nextSqrtPrice, amountLeft, err = p.aToBFromPartialAmountIn(actualAmountIn)
	case types.BtoA:
		outputAmount, nextSqrtPrice, amountLeft, err = p.bToAFromPartialAmountIn(actualAmountIn)
	default:
		err = errorsmod.Wrapf(poolerr.ErrInvalidInput, "trade direction %d", direction)
	}
	if err != nil {
		return SwapResult2{}, err
	}

	includedFeeInputAmount := amountIn
	if amountLeft > 0 {
		if actualAmountIn, err = safemath.Sub(actualAmountIn, amountLeft); err != nil {
			return SwapResult2{}, err
		}
		if feeMode.FeesOnInput {
			// Price the consumed part on its own and gross it back up.
			numerator, err := p.PoolFees.TotalTradingFeeFromExcludedAmount(p.feeQuery(currentPoint, actualAmountIn, direction), maxFeeNumerator)
			if err != nil {
				return SwapResult2{}, err
			}
			included, fee, err := feemath.IncludedFeeAmount(numerator, actualAmountIn)
			if err != nil {
				return SwapResult2{}, err
			}
			split, err := p.PoolFees.SplitFees(fee, feeMode.HasReferral, p.HasPartner())
			if err != nil {
				return SwapResult2{}, err
			}
			result.setFees(split)
			includedFeeInputAmount = included
		} else {
			includedFeeInputAmount = actualAmountIn
		}
	}

	if !feeMode.FeesOnInput {
		onAmount, err := p.PoolFees.FeeOnAmount(outputAmount, tradeFeeNumerator, feeMode.HasReferral, p.HasPartner())
		if err != nil {
			return SwapResult2{}, err
		}
		outputAmount = onAmount.Amount
		result.setFees(onAmount.SplitFees)
	}

	result.IncludedFeeInputAmount = includedFeeInputAmount
	result.ExcludedFeeInputAmount = actualAmountIn
	result.AmountLeft = amountLeft
	result.OutputAmount = outputAmount
	result.NextSqrtPrice = nextSqrtPrice
	return result, nil
}

func (p *Pool) aToBFromPartialAmountIn(amountIn uint64) (out uint64, next *uint256.Int, left uint64, err error) {
	maxAmountIn, err := curvemath.GetDeltaAmountA(p.SqrtMinPrice, p.SqrtPrice, p.Liquidity, safemath.Up)
	if err != nil {
		return 0, nil, 0, err
	}
	consumed := amountIn
	if amountIn >= maxAmountIn {
		consumed = maxAmountIn
		next = cloneInt(p.SqrtMinPrice)
	} else if next, err = curvemath.GetNextSqrtPriceFromInput(p.SqrtPrice, p.Liquidity, amountIn, true); err != nil {
		return 0, nil, 0, err
	}
	if out, err = curvemath.GetDeltaAmountB(next, p.SqrtPrice, p.Liquidity, safemath.Down); err != nil {
		return 0, nil, 0, err
	}
	if left, err = safemath.Sub(amountIn, consumed); err != nil {
		return 0, nil, 0, err
	}
	return out, next, left, nil
}

func (p *Pool) bToAFromPartialAmountIn(amountIn uint64) (out uint64, next *uint256.Int, left uint64, err error) {
	maxAmountIn, err := curvemath.GetDeltaAmountB(p.SqrtPrice, p.SqrtMaxPrice, p.Liquidity, safemath.Up)
	if err != nil {
		return 0, nil, 0, err
	}
	consumed := amountIn
	if amountIn >= maxAmountIn {
		consumed = maxAmountIn
		next = cloneInt(p.SqrtMaxPrice)
	} else if next, err = curvemath.GetNextSqrtPriceFromInput(p.SqrtPrice, p.Liquidity, amountIn, false); err != nil {
		return 0, nil, 0, err
	}
	if out, err = curvemath.GetDeltaAmountA(p.SqrtPrice, next, p.Liquidity, safemath.Down); err != nil {
		return 0, nil, 0, err
	}
	if left, err = safemath.Sub(amountIn, consumed); err != nil {
		return 0, nil, 0, err
	}
	return out, next, left, nil
}

// --- Exact output ---

// SwapResultFromExactOutput buys exactly amountOut, grossing the required input up by the fee.
func (p *Pool) SwapResultFromExactOutput(amountOut uint64, feeMode FeeMode, direction types.TradeDirection, currentPoint uint64) (SwapResult2, error) {
	maxFeeNumerator, err := constants.MaxFeeNumerator(p.Version)
	if err != nil {
		return SwapResult2{}, err
	}

	var result SwapResult2
	includedFeeAmountOut := amountOut
	if !feeMode.FeesOnInput {
		numerator, err := p.PoolFees.TotalTradingFeeFromExcludedAmount(p.feeQuery(currentPoint, amountOut, direction), maxFeeNumerator)
		if err != nil {
			return SwapResult2{}, err
		}
		included, fee, err := feemath.IncludedFeeAmount(numerator, amountOut)
		if err != nil {
			return SwapResult2{}, err
		}
		split, err := p.PoolFees.SplitFees(fee, feeMode.HasReferral, p.HasPartner())
		if err != nil {
			return SwapResult2{}, err
		}
		result.setFees(split)
		includedFeeAmountOut = included
	}

	var inputAmount uint64
	var nextSqrtPrice *uint256.Int
	switch direction {
	case types.AtoB:
		inputAmount, nextSqrtPrice, err = p.aToBFromAmountOut(includedFeeAmountOut)
	case types.BtoA:
		inputAmount, nextSqrtPrice, err = p.bToAFromAmountOut(includedFeeAmountOut)
	default:
		err = errorsmod.Wrapf(poolerr.ErrInvalidInput, "trade direction %d", direction)
	}
	if err != nil {
		return SwapResult2{}, err
	}

	includedFeeInputAmount := inputAmount
	if feeMode.FeesOnInput {
		numerator, err := p.PoolFees.TotalTradingFeeFromExcludedAmount(p.feeQuery(currentPoint, inputAmount, direction), maxFeeNumerator)
		if err != nil {
			return SwapResult2{}, err
		}
		included, fee, err := feemath.IncludedFeeAmount(numerator, inputAmount)
		if err != nil {
			return SwapResult2{}, err
		}
		split, err := p.PoolFees.SplitFees(fee, feeMode.HasReferral, p.HasPartner())
		if err != nil {
			return SwapResult2{}, err
		}
		result.setFees(split)
		includedFeeInputAmount = included
	}

	result.IncludedFeeInputAmount = includedFeeInputAmount
	result.ExcludedFeeInputAmount = inputAmount
	result.OutputAmount = amountOut
	result.NextSqrtPrice = nextSqrtPrice
	return result, nil
}

func (p *Pool) aToBFromAmountOut(amountOut uint64) (uint64, *uint256.Int, error) {
	next, err := curvemath.GetNextSqrtPriceFromOutput(p.SqrtPrice, p.Liquidity, amountOut, true)
	if err != nil {
		return 0, nil, err
	}
	if next.Lt(p.SqrtMinPrice) {
		return 0, nil, errorsmod.Wrapf(poolerr.ErrPriceRangeViolation, "next sqrt price %s below %s", next, p.SqrtMinPrice)
	}
	in, err := curvemath.GetDeltaAmountA(next, p.SqrtPrice, p.Liquidity, safemath.Up)
	if err != nil {
		return 0, nil, err
	}
	return in, next, nil
}

func (p *Pool) bToAFromAmountOut(amountOut uint64) (uint64, *uint256.Int, error) {
	next, err := curvemath.GetNextSqrtPriceFromOutput(p.SqrtPrice, p.Liquidity, amountOut, false)
	if err != nil {
		return 0, nil, err
	}
	if next.Gt(p.SqrtMaxPrice) {
		return 0, nil, errorsmod.Wrapf(poolerr.ErrPriceRangeViolation, "next sqrt price %s above %s", next, p.SqrtMaxPrice)
	}
	in, err := curvemath.GetDeltaAmountB(p.SqrtPrice, next, p.Liquidity, safemath.Up)
	if err != nil {
		return 0, nil, err
	}
	return in, next, nil
}
