package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/cpamm-engine/engine"
	"github.com/defistate/cpamm-engine/protocols/cpamm"
)

const (
	// RpcNamespace is the namespace the stream server registers under.
	RpcNamespace                  = "cpamm"
	StateStreamSubscriptionMethod = "subscribeStateStream"

	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL              string
	Logger           Logger
	BufferSize       uint
	StatePatcher     StatePatcherFunc
	StateDecoder     DecoderFunc
	StateDiffDecoder DecoderFunc
}

func (c *Config) validate() error {
	switch {
	case c.URL == "":
		return errors.New("config: URL is required")
	case c.BufferSize == 0:
		return errors.New("config: BufferSize must be greater than 0")
	case c.Logger == nil:
		return errors.New("config: Logger is required")
	case c.StatePatcher == nil:
		return errors.New("config: StatePatcher is required")
	case c.StateDecoder == nil:
		return errors.New("config: StateDecoder is required")
	case c.StateDiffDecoder == nil:
		return errors.New("config: StateDiffDecoder is required")
	}
	return nil
}

// Client keeps a subscription to the stream server alive and feeds a StreamProcessor.
// It reconnects with exponential backoff, and resubscribes immediately when the
// processor loses sync.
type Client struct {
	url       string
	processor *StreamProcessor
	logger    Logger
	errCh     chan error
}

// NewClient validates cfg and starts the connection loop, which runs until ctx ends.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		url: cfg.URL,
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, Codec{
			Patch:       cfg.StatePatcher,
			DecodeState: cfg.StateDecoder,
			DecodeDiff:  cfg.StateDiffDecoder,
		}),
		logger: cfg.Logger,
		errCh:  make(chan error, 1),
	}

	go c.run(ctx)
	return c, nil
}

func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

func (c *Client) Swaps() <-chan cpamm.EvtSwap2 {
	return c.processor.Swaps()
}

// Err is closed when the client stops. Connection failures are retried, not reported.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func (c *Client) run(ctx context.Context) {
	defer close(c.errCh)
	delay := backoff{min: minReconnectDelay, max: maxReconnectDelay}

	for ctx.Err() == nil {
		err := c.session(ctx, &delay)
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, ErrResync):
			c.logger.Info("resubscribing for a fresh snapshot", "error", err)
		default:
			wait := delay.next()
			c.logger.Error("stream session ended, reconnecting", "error", err, "delay", wait)
			if !sleep(ctx, wait) {
				return
			}
		}
	}
	c.logger.Info("client stopped")
}

// session runs one connection and subscription until it fails, the stream
// loses sync or ctx ends.
func (c *Client) session(ctx context.Context, delay *backoff) error {
	c.logger.Info("connecting to stream server", "url", c.url)
	conn, err := rpc.DialContext(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	messages := make(chan json.RawMessage)
	sub, err := conn.Subscribe(ctx, RpcNamespace, messages, StateStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	// The server opens every subscription with a snapshot.
	c.processor.Reset()
	delay.reset()
	c.logger.Info("subscribed to state stream")

	for {
		select {
		case msg := <-messages:
			err := c.processor.ProcessMessage(msg)
			if errors.Is(err, ErrResync) {
				return err
			}
			if err != nil {
				c.logger.Error("dropping stream message", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed by server")
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoff doubles the reconnect delay up to max.
type backoff struct {
	min, max, cur time.Duration
}

func (b *backoff) next() time.Duration {
	if b.cur == 0 {
		b.cur = b.min
		return b.cur
	}
	b.cur = min(b.cur*2, b.max)
	return b.cur
}

func (b *backoff) reset() {
	b.cur = 0
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
