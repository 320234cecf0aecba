package client

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/cpamm/guard"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// Method names served next to the state stream.
const (
	QuoteMethod = RpcNamespace + "_quote"
	SwapMethod  = RpcNamespace + "_swap"

	UpdatePoolFeesMethod = RpcNamespace + "_updatePoolFees"
)

// SwapArgs is the wire form of a cpamm.SwapRequest.
type SwapArgs struct {
	cpamm.SwapRequest
	// Batch is optional; a swap without one executes as a lone instruction.
	Batch *guard.Batch `json:"batch,omitempty"`
}

// Request converts the arguments into an engine request.
func (a SwapArgs) Request() cpamm.SwapRequest {
	req := a.SwapRequest
	if a.Batch != nil {
		req.Batch = a.Batch
	}
	return req
}

// Caller issues one-shot quote and swap calls against a server.
type Caller struct {
	rpc *rpc.Client
}

// Dial connects to url over any transport the rpc package supports.
func Dial(ctx context.Context, url string) (*Caller, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Caller{rpc: c}, nil
}

// Quote simulates a swap on the server without committing it.
func (c *Caller) Quote(ctx context.Context, args SwapArgs) (*cpamm.EvtSwap2, error) {
	return c.call(ctx, QuoteMethod, args)
}

// Swap executes a swap on the server.
func (c *Caller) Swap(ctx context.Context, args SwapArgs) (*cpamm.EvtSwap2, error) {
	return c.call(ctx, SwapMethod, args)
}

// UpdatePoolFees applies an administrative fee change on the server.
func (c *Caller) UpdatePoolFees(ctx context.Context, pool, operator types.Pubkey, params cpamm.UpdatePoolFeesParameters) (*cpamm.EvtUpdatePoolFees, error) {
	var evt cpamm.EvtUpdatePoolFees
	if err := c.rpc.CallContext(ctx, &evt, UpdatePoolFeesMethod, pool, operator, params); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (c *Caller) call(ctx context.Context, method string, args SwapArgs) (*cpamm.EvtSwap2, error) {
	var evt cpamm.EvtSwap2
	if err := c.rpc.CallContext(ctx, &evt, method, args); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (c *Caller) Close() {
	c.rpc.Close()
}
