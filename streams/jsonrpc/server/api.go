package server

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/client"
)

// API is the receiver registered under the cpamm rpc namespace.
type API struct {
	s *Server
}

// SubscribeStateStream sends the current snapshot, then every diff and swap.
func (api *API) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	events := make(chan client.SubscriptionEvent, api.s.bufferSize)
	full, sub, err := api.s.subscribe(events)
	if err != nil {
		return nil, err
	}

	rpcSub := notifier.CreateSubscription()
	go func() {
		defer sub.Unsubscribe()
		api.s.metrics.subscribers.Inc()
		defer api.s.metrics.subscribers.Dec()

		if err := notifier.Notify(rpcSub.ID, full); err != nil {
			api.s.logger.Warn("failed to send full state", "id", rpcSub.ID, "error", err)
			return
		}
		for {
			select {
			case evt := <-events:
				if err := notifier.Notify(rpcSub.ID, evt); err != nil {
					api.s.logger.Warn("failed to notify subscriber", "id", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				api.s.logger.Debug("subscriber left", "id", rpcSub.ID)
				return
			case <-sub.Err():
				return
			}
		}
	}()
	return rpcSub, nil
}

// Quote simulates a swap without committing it.
func (api *API) Quote(ctx context.Context, args client.SwapArgs) (*cpamm.EvtSwap2, error) {
	evt, err := api.s.engine.Quote(ctx, args.Request())
	return evt, api.result("quote", err)
}

// Swap executes a swap and commits it.
func (api *API) Swap(ctx context.Context, args client.SwapArgs) (*cpamm.EvtSwap2, error) {
	evt, err := api.s.engine.Swap(ctx, args.Request())
	return evt, api.result("swap", err)
}

// UpdatePoolFees applies an administrative fee change.
func (api *API) UpdatePoolFees(ctx context.Context, pool, operator types.Pubkey, params cpamm.UpdatePoolFeesParameters) (*cpamm.EvtUpdatePoolFees, error) {
	evt, err := api.s.engine.UpdatePoolFees(ctx, pool, operator, params)
	return evt, api.result("updatePoolFees", err)
}

func (api *API) result(method string, err error) error {
	if err == nil {
		api.s.metrics.rpcCalls.WithLabelValues(method, "ok").Inc()
		return nil
	}
	api.s.metrics.rpcCalls.WithLabelValues(method, "error").Inc()
	return &callError{err: err}
}

// callError carries the pool error code to rpc clients.
type callError struct {
	err error
}

func (e *callError) Error() string { return e.err.Error() }

func (e *callError) Unwrap() error { return e.err }

func (e *callError) ErrorCode() int {
	if code := poolerr.Code(e.err); code >= poolerr.CodeOffset {
		return int(code)
	}
	if errors.Is(e.err, context.Canceled) || errors.Is(e.err, context.DeadlineExceeded) {
		return -32001
	}
	return -32000
}
