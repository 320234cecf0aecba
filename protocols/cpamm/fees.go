package cpamm

import (
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/basefee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/feemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
)

// SplitFees is a trading fee divided between its recipients.
type SplitFees struct {
	TradingFee  uint64 `json:"tradingFee"` // LP share
	ProtocolFee uint64 `json:"protocolFee"`
	PartnerFee  uint64 `json:"partnerFee"`
	ReferralFee uint64 `json:"referralFee"`
}

// FeeOnAmountResult is an amount net of its trading fee, with the fee split.
type FeeOnAmountResult struct {
	Amount uint64 `json:"amount"`
	SplitFees
}

// SplitFees divides feeAmount. Referral and partner shares come out of the protocol share.
func (f *PoolFees) SplitFees(feeAmount uint64, hasReferral, hasPartner bool) (SplitFees, error) {
	protocolFee, err := safemath.MulDivU64(feeAmount, uint64(f.ProtocolFeePercent), 100, safemath.Down)
	if err != nil {
		return SplitFees{}, err
	}
	tradingFee, err := safemath.Sub(feeAmount, protocolFee)
	if err != nil {
		return SplitFees{}, err
	}

	var referralFee uint64
	if hasReferral {
		if referralFee, err = safemath.MulDivU64(protocolFee, uint64(f.ReferralFeePercent), 100, safemath.Down); err != nil {
			return SplitFees{}, err
		}
	}
	afterReferral, err := safemath.Sub(protocolFee, referralFee)
	if err != nil {
		return SplitFees{}, err
	}

	var partnerFee uint64
	if hasPartner && f.PartnerFeePercent > 0 {
		if partnerFee, err = safemath.MulDivU64(afterReferral, uint64(f.PartnerFeePercent), 100, safemath.Down); err != nil {
			return SplitFees{}, err
		}
	}
	protocolFee, err = safemath.Sub(afterReferral, partnerFee)
	if err != nil {
		return SplitFees{}, err
	}

	return SplitFees{
		TradingFee:  tradingFee,
		ProtocolFee: protocolFee,
		PartnerFee:  partnerFee,
		ReferralFee: referralFee,
	}, nil
}

// FeeOnAmount takes the trading fee out of an amount that includes it.
func (f *PoolFees) FeeOnAmount(amount, tradeFeeNumerator uint64, hasReferral, hasPartner bool) (FeeOnAmountResult, error) {
	excluded, fee, err := feemath.ExcludedFeeAmount(tradeFeeNumerator, amount)
	if err != nil {
		return FeeOnAmountResult{}, err
	}
	split, err := f.SplitFees(fee, hasReferral, hasPartner)
	if err != nil {
		return FeeOnAmountResult{}, err
	}
	return FeeOnAmountResult{Amount: excluded, SplitFees: split}, nil
}

// totalFeeNumerator adds the variable fee to the base fee and caps the sum.
func (f *PoolFees) totalFeeNumerator(baseFeeNumerator, maxFeeNumerator uint64) (uint64, error) {
	variable, err := f.DynamicFee.VariableFee()
	if err != nil {
		return 0, err
	}
	total, err := safemath.AddU128(variable, uint256.NewInt(baseFeeNumerator))
	if err != nil {
		return 0, err
	}
	numerator, err := safemath.ToUint64(total)
	if err != nil {
		return 0, err
	}
	return min(numerator, maxFeeNumerator), nil
}

// TotalTradingFeeFromIncludedAmount prices a trade whose amount contains the fee.
func (f *PoolFees) TotalTradingFeeFromIncludedAmount(q basefee.FeeQuery, maxFeeNumerator uint64) (uint64, error) {
	handler, err := f.BaseFee.Handler()
	if err != nil {
		return 0, err
	}
	base, err := handler.FeeNumeratorFromIncludedAmount(q)
	if err != nil {
		return 0, err
	}
	return f.totalFeeNumerator(base, maxFeeNumerator)
}

// TotalTradingFeeFromExcludedAmount prices a trade whose amount is net of the fee.
func (f *PoolFees) TotalTradingFeeFromExcludedAmount(q basefee.FeeQuery, maxFeeNumerator uint64) (uint64, error) {
	handler, err := f.BaseFee.Handler()
	if err != nil {
		return 0, err
	}
	base, err := handler.FeeNumeratorFromExcludedAmount(q)
	if err != nil {
		return 0, err
	}
	return f.totalFeeNumerator(base, maxFeeNumerator)
}
