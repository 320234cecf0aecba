// Package server publishes the pool and mint state of a cpamm engine over
// go-ethereum JSON-RPC subscriptions and serves quote and swap calls.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/cpamm-engine/differ"
	"github.com/defistate/cpamm-engine/engine"
	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/mintregistry"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/client"
)

// Protocol IDs of the published snapshot.
const (
	PoolsProtocolID engine.ProtocolID = "cpamm_pools"
	MintsProtocolID engine.ProtocolID = "mints"
)

const (
	defaultBufferSize = 64
	engineEventBuffer = 256
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateDiffer computes the diff between two consecutive snapshots.
type StateDiffer interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// Config holds the configuration for the server.
type Config struct {
	Engine  *cpamm.Engine
	Mints   *mintregistry.Registry
	Differ  StateDiffer
	Clock   cpamm.Clock
	Cluster string
	// BufferSize is the per-subscriber event buffer. Zero selects a default.
	BufferSize uint
	// RefreshInterval re-snapshots periodically so mint changes are published. Zero disables it.
	RefreshInterval time.Duration
	Registry        prometheus.Registerer
	Logger          Logger
}

func (c *Config) validate() error {
	if c.Engine == nil {
		return errors.New("config: Engine is required")
	}
	if c.Mints == nil {
		return errors.New("config: Mints is required")
	}
	if c.Differ == nil {
		return errors.New("config: Differ is required")
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

// Server owns the latest published snapshot and fans events out to subscribers.
type Server struct {
	engine          *cpamm.Engine
	mints           *mintregistry.Registry
	differ          StateDiffer
	clock           cpamm.Clock
	cluster         string
	bufferSize      int
	refreshInterval time.Duration
	metrics         *Metrics
	logger          Logger

	// mu orders snapshots and their publication.
	mu    sync.Mutex
	last  *engine.State
	feed  event.Feed
	scope event.SubscriptionScope

	rpc *rpc.Server
}

func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bufferSize := int(cfg.BufferSize)
	if bufferSize == 0 {
		bufferSize = defaultBufferSize
	}

	s := &Server{
		engine:          cfg.Engine,
		mints:           cfg.Mints,
		differ:          cfg.Differ,
		clock:           cfg.Clock,
		cluster:         cfg.Cluster,
		bufferSize:      bufferSize,
		refreshInterval: cfg.RefreshInterval,
		metrics:         NewMetrics(cfg.Registry),
		logger:          cfg.Logger,
		rpc:             rpc.NewServer(),
	}
	s.last = s.snapshot(0)

	if err := s.rpc.RegisterName(client.RpcNamespace, &API{s: s}); err != nil {
		return nil, fmt.Errorf("register rpc api: %w", err)
	}
	return s, nil
}

// --- Snapshots ---

func (s *Server) snapshot(sequence uint64) *engine.State {
	slot := s.clock.Slot()
	timestamp := s.clock.UnixTimestamp()
	summary := engine.SlotSummary{
		Slot:       slot,
		Timestamp:  timestamp,
		ReceivedAt: time.Now().UnixNano(),
		Sequence:   sequence,
	}
	return &engine.State{
		Cluster:   s.cluster,
		Timestamp: timestamp,
		Slot:      summary,
		Protocols: map[engine.ProtocolID]engine.ProtocolState{
			PoolsProtocolID: {
				Meta:       engine.ProtocolMeta{Name: "cpamm", Tags: []string{"dex"}},
				SyncedSlot: &slot,
				Schema:     cpamm.Schema,
				Data:       s.engine.Pools().View(),
			},
			MintsProtocolID: {
				Meta:       engine.ProtocolMeta{Name: "mints", Tags: []string{"registry"}},
				SyncedSlot: &slot,
				Schema:     mintregistry.Schema,
				Data:       s.mints.View(),
			},
		},
	}
}

// State returns the latest published snapshot.
func (s *Server) State() *engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Refresh snapshots the registries and publishes a diff if anything changed.
func (s *Server) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot(s.last.Slot.Sequence + 1)
	diff, err := s.differ.Diff(s.last, next)
	if err != nil {
		s.metrics.refreshErrors.Inc()
		s.logger.Error("failed to diff snapshots", "error", err, "sequence", next.Slot.Sequence)
		return
	}
	if diff.IsEmpty() {
		return
	}
	s.last = next
	s.publishLocked(client.EventDiff, diff)
}

// --- Events ---

func (s *Server) publishLocked(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode event", "type", eventType, "error", err)
		return
	}
	s.feed.Send(client.SubscriptionEvent{Type: eventType, Payload: data, SentAt: time.Now().UnixNano()})
	s.metrics.eventsPublished.WithLabelValues(eventType).Inc()
}

// subscribe returns the current snapshot as a full event together with a
// subscription that delivers every later event.
func (s *Server) subscribe(ch chan<- client.SubscriptionEvent) (client.SubscriptionEvent, event.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(s.last)
	if err != nil {
		return client.SubscriptionEvent{}, nil, err
	}
	full := client.SubscriptionEvent{Type: client.EventFull, Payload: data, SentAt: time.Now().UnixNano()}
	return full, s.scope.Track(s.feed.Subscribe(ch)), nil
}

// Run follows the engine's swap and fee-update feeds until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	swaps := make(chan cpamm.EvtSwap2, engineEventBuffer)
	swapSub := s.engine.SubscribeSwaps(swaps)
	defer swapSub.Unsubscribe()

	feeUpdates := make(chan cpamm.EvtUpdatePoolFees, engineEventBuffer)
	feeSub := s.engine.SubscribePoolFeeUpdates(feeUpdates)
	defer feeSub.Unsubscribe()

	var tick <-chan time.Time
	if s.refreshInterval > 0 {
		ticker := time.NewTicker(s.refreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.logger.Info("state stream running", "cluster", s.cluster)
	for {
		select {
		case evt := <-swaps:
			s.mu.Lock()
			s.publishLocked(client.EventSwap, evt)
			s.mu.Unlock()
			s.Refresh()
		case evt := <-feeUpdates:
			s.logger.Info("pool fees updated", "pool", evt.Pool, "operator", evt.Operator)
			s.Refresh()
		case <-tick:
			s.Refresh()
		case err := <-swapSub.Err():
			return err
		case err := <-feeSub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// --- Transport ---

// Handler serves JSON-RPC over HTTP and websocket on the same endpoint.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	ws := s.rpc.WebsocketHandler(allowedOrigins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebsocket(r) {
			ws.ServeHTTP(w, r)
			return
		}
		s.rpc.ServeHTTP(w, r)
	})
}

func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// Stop closes all subscriptions and the rpc server.
func (s *Server) Stop() {
	s.scope.Close()
	s.rpc.Stop()
}
