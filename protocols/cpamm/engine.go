package cpamm

import (
	"context"
	"errors"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/cpamm-engine/protocols/cpamm/basefee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/transferfee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/guard"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TransferFeeSource resolves the transfer-fee setting of a mint.
type TransferFeeSource interface {
	TransferFee(mint types.Pubkey) (transferfee.Config, error)
}

// NoTransferFees treats every mint as fee-free.
type NoTransferFees struct{}

func (NoTransferFees) TransferFee(types.Pubkey) (transferfee.Config, error) {
	return transferfee.Config{}, nil
}

// --- Config ---

// Config holds the engine's collaborators.
type Config struct {
	// ProgramID identifies this engine's instructions inside a batch.
	ProgramID types.Pubkey
	Pools     *Registry
	Mints     TransferFeeSource
	Clock     Clock
	Registry  prometheus.Registerer
	Logger    Logger
}

func (c *Config) validate() error {
	if c.ProgramID.IsZero() {
		return errors.New("config: ProgramID is required")
	}
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	if c.Mints == nil {
		return errors.New("config: Mints is required")
	}
	if c.Clock == nil {
		return errors.New("config: Clock is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Engine runs the swap pipeline against the pools of a Registry.
type Engine struct {
	programID types.Pubkey
	pools     *Registry
	mints     TransferFeeSource
	clock     Clock
	metrics   *Metrics
	logger    Logger

	swapFeed event.Feed
	feeFeed  event.Feed
	scope    event.SubscriptionScope
}

// NewEngine builds an engine from cfg.
func NewEngine(cfg *Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		programID: cfg.ProgramID,
		pools:     cfg.Pools,
		mints:     cfg.Mints,
		clock:     cfg.Clock,
		metrics:   NewMetrics(cfg.Registry),
		logger:    cfg.Logger,
	}, nil
}

// ProgramID is the identity the guard treats as "self".
func (e *Engine) ProgramID() types.Pubkey { return e.programID }

// Pools exposes the registry the engine trades against.
func (e *Engine) Pools() *Registry { return e.pools }

// SubscribeSwaps delivers every committed swap to ch.
func (e *Engine) SubscribeSwaps(ch chan<- EvtSwap2) event.Subscription {
	return e.scope.Track(e.swapFeed.Subscribe(ch))
}

// SubscribePoolFeeUpdates delivers every committed fee update to ch.
func (e *Engine) SubscribePoolFeeUpdates(ch chan<- EvtUpdatePoolFees) event.Subscription {
	return e.scope.Track(e.feeFeed.Subscribe(ch))
}

// Close ends all subscriptions.
func (e *Engine) Close() {
	e.scope.Close()
}

// --- Swap ---

// SwapRequest is one swap against one pool.
type SwapRequest struct {
	Pool      types.Pubkey    `json:"pool"`
	InputMint types.Pubkey    `json:"inputMint"`
	Payer     types.Pubkey    `json:"payer"`
	Params    SwapParameters2 `json:"params"`
	// HasReferral routes the host share of the protocol fee to a referrer.
	HasReferral bool `json:"hasReferral"`
	// Batch is the enclosing instruction batch. Nil means the swap executes alone.
	Batch guard.Introspector `json:"-"`
}

// Swap runs the pipeline and commits the result to the pool. Nothing is written on failure.
func (e *Engine) Swap(ctx context.Context, req SwapRequest) (*EvtSwap2, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timer := prometheus.NewTimer(e.metrics.swapDuration.WithLabelValues("swap"))
	defer timer.ObserveDuration()

	var evt *EvtSwap2
	err := e.pools.Update(req.Pool, func(p *Pool) error {
		var err error
		evt, err = e.execute(p, req)
		return err
	})
	if err != nil {
		e.recordFailure(req, err)
		return nil, err
	}

	mode, _ := req.Params.Mode()
	e.metrics.swapsTotal.WithLabelValues(mode.String(), evt.TradeDirection.String()).Inc()
	e.logger.Debug("swap committed",
		"pool", req.Pool.String(),
		"mode", mode.String(),
		"direction", evt.TradeDirection.String(),
		"amountIn", evt.IncludedTransferFeeAmountIn,
		"amountOut", evt.ExcludedTransferFeeAmountOut,
	)
	e.swapFeed.Send(*evt)
	return evt, nil
}

// Quote runs the same pipeline against a copy of the pool and discards the result.
func (e *Engine) Quote(ctx context.Context, req SwapRequest) (*EvtSwap2, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timer := prometheus.NewTimer(e.metrics.swapDuration.WithLabelValues("quote"))
	defer timer.ObserveDuration()

	pool, err := e.pools.Get(req.Pool)
	if err != nil {
		return nil, err
	}
	return e.execute(pool, req)
}

func (e *Engine) recordFailure(req SwapRequest, err error) {
	code := poolerr.Code(err)
	e.metrics.swapFailuresTotal.WithLabelValues(strconv.FormatUint(uint64(code), 10)).Inc()
	e.logger.Warn("swap rejected", "pool", req.Pool.String(), "code", code, "error", err)
}

// execute mutates pool in place; callers pass a copy.
func (e *Engine) execute(pool *Pool, req SwapRequest) (*EvtSwap2, error) {
	if !pool.CanSwap() {
		return nil, errorsmod.Wrapf(poolerr.ErrPoolDisabled, "pool %s", pool.Address)
	}
	swapMode, err := req.Params.Mode()
	if err != nil {
		return nil, err
	}
	direction, err := pool.TradeDirection(req.InputMint)
	if err != nil {
		return nil, err
	}
	if req.Params.Amount0 == 0 {
		return nil, errorsmod.Wrap(poolerr.ErrAmountIsZero, "amount_0")
	}

	currentPoint, err := CurrentPoint(e.clock, pool.ActivationType)
	if err != nil {
		return nil, err
	}
	if err := e.checkSingleSwap(pool, req, direction, currentPoint); err != nil {
		return nil, err
	}

	currentTimestamp := e.clock.UnixTimestamp()
	if err := pool.UpdatePreSwap(currentTimestamp); err != nil {
		return nil, err
	}

	feeMode, err := ResolveFeeMode(pool.CollectFeeMode, direction, req.HasReferral)
	if err != nil {
		return nil, err
	}

	inMint, outMint := pool.TokenAMint, pool.TokenBMint
	if direction == types.BtoA {
		inMint, outMint = outMint, inMint
	}
	tokenInFee, err := e.mints.TransferFee(inMint)
	if err != nil {
		return nil, err
	}
	tokenOutFee, err := e.mints.TransferFee(outMint)
	if err != nil {
		return nil, err
	}

	params := processSwapParams{
		pool:           pool,
		tokenInFee:     tokenInFee,
		tokenOutFee:    tokenOutFee,
		feeMode:        feeMode,
		tradeDirection: direction,
		currentPoint:   currentPoint,
		amount0:        req.Params.Amount0,
		amount1:        req.Params.Amount1,
	}
	var processed processSwapResult
	switch swapMode {
	case types.ExactIn:
		processed, err = processSwapExactIn(params)
	case types.PartialFill:
		processed, err = processSwapPartialFill(params)
	case types.ExactOut:
		processed, err = processSwapExactOut(params)
	}
	if err != nil {
		return nil, err
	}

	if err := pool.ApplySwapResult(processed.swapResult, feeMode, currentTimestamp); err != nil {
		return nil, err
	}

	return &EvtSwap2{
		Pool:                         pool.Address,
		TradeDirection:               direction,
		CollectFeeMode:               pool.CollectFeeMode,
		HasReferral:                  req.HasReferral,
		Params:                       req.Params,
		SwapResult:                   processed.swapResult,
		CurrentTimestamp:             currentTimestamp,
		IncludedTransferFeeAmountIn:  processed.includedTransferFeeAmountIn,
		IncludedTransferFeeAmountOut: processed.includedTransferFeeAmountOut,
		ExcludedTransferFeeAmountOut: processed.excludedTransferFeeAmountOut,
		ReserveAAmount:               pool.ReserveA,
		ReserveBAmount:               pool.ReserveB,
	}, nil
}

// checkSingleSwap runs the guard while the pool's rate limiter is in force.
func (e *Engine) checkSingleSwap(pool *Pool, req SwapRequest, direction types.TradeDirection, currentPoint uint64) error {
	handler, err := pool.PoolFees.BaseFee.Handler()
	if err != nil {
		return err
	}
	limiter, ok := handler.(basefee.FeeRateLimiter)
	if !ok {
		return nil
	}
	applied, err := limiter.IsApplied(currentPoint, pool.ActivationPoint, direction)
	if err != nil || !applied {
		return err
	}

	batch := req.Batch
	if batch == nil {
		data, err := req.Params.MarshalBinary()
		if err != nil {
			return err
		}
		batch = guard.SingleInstruction(guard.SwapInstruction(e.programID, pool.Address, req.Payer, data))
	}
	if err := guard.ValidateSingleSwap(e.programID, pool.Address, batch); err != nil {
		e.metrics.guardChecksTotal.WithLabelValues("rejected").Inc()
		return err
	}
	e.metrics.guardChecksTotal.WithLabelValues("passed").Inc()
	return nil
}
