package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/defistate/cpamm-engine/protocols/cpamm"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	flushTimeout         = 5 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SwapSource is the feed of committed swaps, typically a *cpamm.Engine.
type SwapSource interface {
	SubscribeSwaps(ch chan<- cpamm.EvtSwap2) event.Subscription
}

// SinkConfig holds the configuration for a Sink.
type SinkConfig struct {
	Source SwapSource
	Store  SwapEventStore
	// BatchSize caps the records written per flush. Zero selects a default.
	BatchSize int
	// FlushInterval bounds how long a record waits in the buffer. Zero selects a default.
	FlushInterval time.Duration
	Logger        Logger
}

func (c *SinkConfig) validate() error {
	if c.Source == nil {
		return errors.New("config: Source is required")
	}
	if c.Store == nil {
		return errors.New("config: Store is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.BatchSize < 0 {
		return errors.New("config: BatchSize must not be negative")
	}
	return nil
}

// Sink persists every swap of a SwapSource, in batches.
type Sink struct {
	source        SwapSource
	store         SwapEventStore
	batchSize     int
	flushInterval time.Duration
	logger        Logger

	nextID  uint64
	pending []*SwapRecord
}

func NewSink(cfg *SinkConfig) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Sink{
		source:        cfg.Source,
		store:         cfg.Store,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        cfg.Logger,
	}
	if s.batchSize == 0 {
		s.batchSize = defaultBatchSize
	}
	if s.flushInterval == 0 {
		s.flushInterval = defaultFlushInterval
	}
	return s, nil
}

// Run consumes swaps until ctx ends, then flushes what is buffered.
// IDs continue after the highest ID already in the store.
func (s *Sink) Run(ctx context.Context) error {
	last, err := s.store.LastID(ctx)
	if err != nil {
		return fmt.Errorf("sink: load last id: %w", err)
	}
	s.nextID = last + 1

	swaps := make(chan cpamm.EvtSwap2, s.batchSize)
	sub := s.source.SubscribeSwaps(swaps)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	s.logger.Info("swap sink running", "next_id", s.nextID)
	for {
		select {
		case evt := <-swaps:
			s.buffer(evt)
			if len(s.pending) >= s.batchSize {
				s.flush(ctx)
			}
		case <-ticker.C:
			s.flush(ctx)
		case err := <-sub.Err():
			s.flush(ctx)
			return err
		case <-ctx.Done():
			// Keep what the feed already delivered.
		drain:
			for {
				select {
				case evt := <-swaps:
					s.buffer(evt)
				default:
					break drain
				}
			}
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			s.flush(flushCtx)
			return ctx.Err()
		}
	}
}

func (s *Sink) buffer(evt cpamm.EvtSwap2) {
	s.pending = append(s.pending, NewSwapRecord(s.nextID, evt))
	s.nextID++
}

// flush writes the buffer. A failed batch is kept and retried on the next flush.
func (s *Sink) flush(ctx context.Context) {
	if len(s.pending) == 0 {
		return
	}
	if err := s.store.InsertBulk(ctx, s.pending); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			s.logger.Error("dropping swap batch with duplicate ids", "count", len(s.pending), "error", err)
			s.pending = s.pending[:0]
			return
		}
		s.logger.Warn("failed to persist swaps, will retry", "count", len(s.pending), "error", err)
		return
	}
	s.logger.Debug("persisted swaps", "count", len(s.pending), "last_id", s.pending[len(s.pending)-1].ID)
	s.pending = s.pending[:0]
}
