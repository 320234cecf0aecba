package cpamm

import (
	"context"

	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// UpdatePoolFees applies an administrative fee change in place.
// The cliff fee may only change once the base fee schedule is static.
func (p *Pool) UpdatePoolFees(params UpdatePoolFeesParameters, currentPoint uint64) error {
	if err := params.Validate(); err != nil {
		return err
	}

	if params.CliffFeeNumerator != nil {
		cliff := *params.CliffFeeNumerator
		handler, err := p.PoolFees.BaseFee.Handler()
		if err != nil {
			return err
		}
		static, err := handler.IsStatic(currentPoint, p.ActivationPoint)
		if err != nil {
			return err
		}
		if !static {
			return errorsmod.Wrap(poolerr.ErrCannotUpdateBaseFee, "base fee schedule is still running")
		}
		if cliff < constants.MinFeeNumerator || cliff > constants.MaxFeeNumeratorPostUpdate {
			return errorsmod.Wrapf(poolerr.ErrInvalidUpdatePoolFeesParameters, "cliff fee numerator %d outside [%d, %d]",
				cliff, constants.MinFeeNumerator, constants.MaxFeeNumeratorPostUpdate)
		}
		if err := p.PoolFees.BaseFee.UpdateCliffFeeNumerator(cliff); err != nil {
			return err
		}
		handler, err = p.PoolFees.BaseFee.Handler()
		if err != nil {
			return err
		}
		if err := handler.Validate(p.CollectFeeMode, p.ActivationType); err != nil {
			return err
		}
	}

	switch {
	case params.DynamicFee == nil:
	case params.DynamicFee.IsZero():
		p.PoolFees.DynamicFee = DynamicFee{}
	case p.PoolFees.DynamicFee.IsEnabled():
		// Keep the accumulated volatility; only the configuration changes.
		next := params.DynamicFee.toDynamicFee()
		current := p.PoolFees.DynamicFee
		next.LastUpdateTimestamp = current.LastUpdateTimestamp
		next.SqrtPriceReference = cloneInt(current.SqrtPriceReference)
		next.VolatilityAccumulator = cloneInt(current.VolatilityAccumulator)
		next.VolatilityReference = cloneInt(current.VolatilityReference)
		p.PoolFees.DynamicFee = next
	default:
		p.PoolFees.DynamicFee = params.DynamicFee.toDynamicFee()
	}
	return nil
}

// SetStatus toggles trading. Setting the current status again is rejected.
func (p *Pool) SetStatus(status PoolStatus) error {
	if status > PoolDisabled {
		return errorsmod.Wrapf(poolerr.ErrTypeCastFailed, "pool status %d", status)
	}
	if status == p.Status {
		return errorsmod.Wrapf(poolerr.ErrInvalidPoolStatus, "pool already has status %d", status)
	}
	p.Status = status
	return nil
}

// --- Engine entry points ---

// UpdatePoolFees commits an administrative fee change to a pool atomically.
func (e *Engine) UpdatePoolFees(ctx context.Context, pool, operator types.Pubkey, params UpdatePoolFeesParameters) (*EvtUpdatePoolFees, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := e.pools.Update(pool, func(p *Pool) error {
		currentPoint, err := CurrentPoint(e.clock, p.ActivationType)
		if err != nil {
			return err
		}
		return p.UpdatePoolFees(params, currentPoint)
	})
	if err != nil {
		e.logger.Warn("pool fee update rejected", "pool", pool.String(), "error", err)
		return nil, err
	}

	evt := &EvtUpdatePoolFees{Pool: pool, Operator: operator, Params: params}
	e.logger.Info("pool fees updated", "pool", pool.String(), "operator", operator.String())
	e.feeFeed.Send(*evt)
	return evt, nil
}

// SetPoolStatus enables or disables trading on a pool.
func (e *Engine) SetPoolStatus(ctx context.Context, pool types.Pubkey, status PoolStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.pools.Update(pool, func(p *Pool) error { return p.SetStatus(status) }); err != nil {
		return err
	}
	e.logger.Info("pool status changed", "pool", pool.String(), "status", status)
	return nil
}
