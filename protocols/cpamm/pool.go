// Package cpamm is the fee and swap engine of a single-range constant-product pool.
// Pool holds the swap-relevant state; Engine runs swaps against pools held in a Registry.
package cpamm

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/defistate/cpamm-engine/protocols/cpamm/basefee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/curvemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// PoolStatus gates trading on a pool.
type PoolStatus uint8

const (
	PoolEnabled PoolStatus = iota
	PoolDisabled
)

// PoolFees is the fee configuration and fee-schedule state of a pool.
type PoolFees struct {
	BaseFee            basefee.Info `json:"baseFee"`
	ProtocolFeePercent uint8        `json:"protocolFeePercent"`
	PartnerFeePercent  uint8        `json:"partnerFeePercent"`
	ReferralFeePercent uint8        `json:"referralFeePercent"`
	DynamicFee         DynamicFee   `json:"dynamicFee"`
	// InitSqrtPrice anchors the market cap scheduler.
	InitSqrtPrice *uint256.Int `json:"initSqrtPrice"`
}

// Pool is the swap-relevant state of one pool.
type Pool struct {
	Address    types.Pubkey `json:"address"`
	TokenAMint types.Pubkey `json:"tokenAMint"`
	TokenBMint types.Pubkey `json:"tokenBMint"`
	// Partner is the zero key when the pool has no partner.
	Partner types.Pubkey `json:"partner"`

	PoolFees PoolFees `json:"poolFees"`

	Liquidity    *uint256.Int `json:"liquidity"`
	SqrtPrice    *uint256.Int `json:"sqrtPrice"`
	SqrtMinPrice *uint256.Int `json:"sqrtMinPrice"`
	SqrtMaxPrice *uint256.Int `json:"sqrtMaxPrice"`

	ActivationPoint uint64               `json:"activationPoint"`
	ActivationType  types.ActivationType `json:"activationType"`
	CollectFeeMode  types.CollectFeeMode `json:"collectFeeMode"`
	Status          PoolStatus           `json:"status"`
	Version         uint8                `json:"version"`

	ProtocolAFee uint64 `json:"protocolAFee"`
	ProtocolBFee uint64 `json:"protocolBFee"`
	PartnerAFee  uint64 `json:"partnerAFee"`
	PartnerBFee  uint64 `json:"partnerBFee"`

	FeeAPerLiquidity *uint256.Int `json:"feeAPerLiquidity"`
	FeeBPerLiquidity *uint256.Int `json:"feeBPerLiquidity"`

	// Liquidity-backed reserves, recomputed after every swap.
	ReserveA uint64 `json:"reserveA"`
	ReserveB uint64 `json:"reserveB"`
}

// Clone returns a deep copy with its own big-integer memory.
func (p *Pool) Clone() *Pool {
	out := *p
	out.PoolFees.DynamicFee = p.PoolFees.DynamicFee.clone()
	out.PoolFees.InitSqrtPrice = cloneInt(p.PoolFees.InitSqrtPrice)
	out.Liquidity = cloneInt(p.Liquidity)
	out.SqrtPrice = cloneInt(p.SqrtPrice)
	out.SqrtMinPrice = cloneInt(p.SqrtMinPrice)
	out.SqrtMaxPrice = cloneInt(p.SqrtMaxPrice)
	out.FeeAPerLiquidity = cloneInt(p.FeeAPerLiquidity)
	out.FeeBPerLiquidity = cloneInt(p.FeeBPerLiquidity)
	return &out
}

// Equal compares every field that a swap or an admin update can change.
func (p *Pool) Equal(o *Pool) bool {
	return p.Address == o.Address &&
		p.TokenAMint == o.TokenAMint &&
		p.TokenBMint == o.TokenBMint &&
		p.Partner == o.Partner &&
		p.PoolFees.BaseFee == o.PoolFees.BaseFee &&
		p.PoolFees.ProtocolFeePercent == o.PoolFees.ProtocolFeePercent &&
		p.PoolFees.PartnerFeePercent == o.PoolFees.PartnerFeePercent &&
		p.PoolFees.ReferralFeePercent == o.PoolFees.ReferralFeePercent &&
		p.PoolFees.DynamicFee.equal(o.PoolFees.DynamicFee) &&
		cloneInt(p.PoolFees.InitSqrtPrice).Eq(cloneInt(o.PoolFees.InitSqrtPrice)) &&
		cloneInt(p.Liquidity).Eq(cloneInt(o.Liquidity)) &&
		cloneInt(p.SqrtPrice).Eq(cloneInt(o.SqrtPrice)) &&
		cloneInt(p.SqrtMinPrice).Eq(cloneInt(o.SqrtMinPrice)) &&
		cloneInt(p.SqrtMaxPrice).Eq(cloneInt(o.SqrtMaxPrice)) &&
		p.ActivationPoint == o.ActivationPoint &&
		p.ActivationType == o.ActivationType &&
		p.CollectFeeMode == o.CollectFeeMode &&
		p.Status == o.Status &&
		p.Version == o.Version &&
		p.ProtocolAFee == o.ProtocolAFee &&
		p.ProtocolBFee == o.ProtocolBFee &&
		p.PartnerAFee == o.PartnerAFee &&
		p.PartnerBFee == o.PartnerBFee &&
		cloneInt(p.FeeAPerLiquidity).Eq(cloneInt(o.FeeAPerLiquidity)) &&
		cloneInt(p.FeeBPerLiquidity).Eq(cloneInt(o.FeeBPerLiquidity)) &&
		p.ReserveA == o.ReserveA &&
		p.ReserveB == o.ReserveB
}

// HasPartner reports whether a partner shares in the protocol fee.
func (p *Pool) HasPartner() bool {
	return !p.Partner.IsZero()
}

// CanSwap reports whether the pool accepts trades.
func (p *Pool) CanSwap() bool {
	return p.Status == PoolEnabled
}

// TradeDirection derives the direction from the mint being sold.
func (p *Pool) TradeDirection(inputMint types.Pubkey) (types.TradeDirection, error) {
	switch inputMint {
	case p.TokenAMint:
		return types.AtoB, nil
	case p.TokenBMint:
		return types.BtoA, nil
	default:
		return 0, errorsmod.Wrapf(poolerr.ErrInvalidInput, "mint %s is not traded by pool %s", inputMint, p.Address)
	}
}

// Validate checks the structural invariants a pool must hold before it can be traded.
func (p *Pool) Validate() error {
	if p.Liquidity == nil || p.SqrtPrice == nil || p.SqrtMinPrice == nil || p.SqrtMaxPrice == nil {
		return errorsmod.Wrap(poolerr.ErrInvalidInput, "pool prices and liquidity are required")
	}
	if p.SqrtMinPrice.Lt(constants.MinSqrtPrice) || p.SqrtMaxPrice.Gt(constants.MaxSqrtPrice) || !p.SqrtMinPrice.Lt(p.SqrtMaxPrice) {
		return errorsmod.Wrapf(poolerr.ErrInvalidInput, "price range [%s, %s]", p.SqrtMinPrice, p.SqrtMaxPrice)
	}
	if p.SqrtPrice.Lt(p.SqrtMinPrice) || p.SqrtPrice.Gt(p.SqrtMaxPrice) {
		return errorsmod.Wrapf(poolerr.ErrPriceRangeViolation, "sqrt price %s", p.SqrtPrice)
	}
	if p.TokenAMint == p.TokenBMint {
		return errorsmod.Wrap(poolerr.ErrInvalidInput, "token mints must differ")
	}
	if _, err := constants.MaxFeeNumerator(p.Version); err != nil {
		return err
	}
	handler, err := p.PoolFees.BaseFee.Handler()
	if err != nil {
		return err
	}
	return handler.Validate(p.CollectFeeMode, p.ActivationType)
}

// Reserves are the token amounts backed by the pool's liquidity at its current price.
func (p *Pool) Reserves() (reserveA, reserveB uint64, err error) {
	if p.Liquidity.IsZero() {
		return 0, 0, nil
	}
	reserveA, err = curvemath.GetDeltaAmountA(p.SqrtPrice, p.SqrtMaxPrice, p.Liquidity, safemath.Down)
	if err != nil {
		return 0, 0, err
	}
	reserveB, err = curvemath.GetDeltaAmountB(p.SqrtMinPrice, p.SqrtPrice, p.Liquidity, safemath.Down)
	if err != nil {
		return 0, 0, err
	}
	return reserveA, reserveB, nil
}

// --- Dynamic fee hooks ---

// UpdatePreSwap refreshes the dynamic fee references before a swap.
func (p *Pool) UpdatePreSwap(currentTimestamp uint64) error {
	if !p.PoolFees.DynamicFee.IsEnabled() {
		return nil
	}
	return p.PoolFees.DynamicFee.UpdateReferences(p.SqrtPrice, currentTimestamp)
}

// updatePostSwap accumulates volatility and stamps the time only when a bin was crossed.
func (p *Pool) updatePostSwap(oldSqrtPrice *uint256.Int, currentTimestamp uint64) error {
	dynamicFee := &p.PoolFees.DynamicFee
	if !dynamicFee.IsEnabled() {
		return nil
	}
	if err := dynamicFee.UpdateVolatilityAccumulator(p.SqrtPrice); err != nil {
		return err
	}
	delta, err := DeltaBinID(cloneInt(dynamicFee.BinStepU128), oldSqrtPrice, p.SqrtPrice)
	if err != nil {
		return err
	}
	if !delta.IsZero() {
		dynamicFee.LastUpdateTimestamp = currentTimestamp
	}
	return nil
}

// ApplySwapResult commits a computed swap: price, fee growth, protocol and partner fees,
// reserves and the post-swap dynamic fee state.
func (p *Pool) ApplySwapResult(result SwapResult2, feeMode FeeMode, currentTimestamp uint64) error {
	oldSqrtPrice := cloneInt(p.SqrtPrice)
	p.SqrtPrice = cloneInt(result.NextSqrtPrice)

	feePerLiquidity, err := safemath.ShlDiv(uint256.NewInt(result.TradingFee), p.Liquidity, constants.LiquidityScale, safemath.Down)
	if err != nil {
		return err
	}

	if feeMode.FeesOnTokenA {
		if p.PartnerAFee, err = safemath.Add(p.PartnerAFee, result.PartnerFee); err != nil {
			return err
		}
		if p.ProtocolAFee, err = safemath.Add(p.ProtocolAFee, result.ProtocolFee); err != nil {
			return err
		}
		if p.FeeAPerLiquidity, err = safemath.Add256(cloneInt(p.FeeAPerLiquidity), feePerLiquidity); err != nil {
			return err
		}
	} else {
		if p.PartnerBFee, err = safemath.Add(p.PartnerBFee, result.PartnerFee); err != nil {
			return err
		}
		if p.ProtocolBFee, err = safemath.Add(p.ProtocolBFee, result.ProtocolFee); err != nil {
			return err
		}
		if p.FeeBPerLiquidity, err = safemath.Add256(cloneInt(p.FeeBPerLiquidity), feePerLiquidity); err != nil {
			return err
		}
	}

	if p.ReserveA, p.ReserveB, err = p.Reserves(); err != nil {
		return err
	}
	return p.updatePostSwap(oldSqrtPrice, currentTimestamp)
}
