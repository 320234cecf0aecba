package patcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/cpamm-engine/differ"
	"github.com/defistate/cpamm-engine/engine"
)

var (
	ErrSequenceMismatch = errors.New("patcher: diff does not start at the state's sequence")
	ErrSequenceRegress  = errors.New("patcher: diff does not advance the sequence")
	ErrUnknownSchema    = errors.New("patcher: no patcher registered for schema")
	ErrSchemaMismatch   = errors.New("patcher: schema mismatch")
)

// PatcherFunc applies one protocol's diff to its previous view.
// prevState is nil for a protocol the state has not seen yet.
// Implementations must not mutate prevState.
type PatcherFunc func(prevState any, diffData any) (newState any, err error)

// StatePatcherConfig holds one patcher per schema and the patcher's dependencies.
type StatePatcherConfig struct {
	Patchers map[engine.ProtocolSchema]PatcherFunc
	Registry prometheus.Registerer
	Logger   Logger
}

func (c *StatePatcherConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, fn := range c.Patchers {
		if fn == nil {
			return fmt.Errorf("config: patcher for schema %q is nil", schema)
		}
	}
	return nil
}

// StatePatcher rebuilds the next snapshot from the previous one and a StateDiff.
type StatePatcher struct {
	metrics  *Metrics
	logger   Logger
	patchers map[engine.ProtocolSchema]PatcherFunc
}

func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	patchers := make(map[engine.ProtocolSchema]PatcherFunc, len(cfg.Patchers))
	for schema, fn := range cfg.Patchers {
		patchers[schema] = fn
	}

	return &StatePatcher{
		metrics:  NewMetrics(cfg.Registry),
		logger:   cfg.Logger,
		patchers: patchers,
	}, nil
}

// Patch applies diff to old. Protocols absent from the diff are carried over by
// reference; the ones it names are rebuilt by their schema's PatcherFunc.
// old is never modified.
func (p *StatePatcher) Patch(old *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	start := time.Now()
	defer func() { p.metrics.patchDuration.Observe(time.Since(start).Seconds()) }()

	if old.Slot.Sequence != diff.FromSequence {
		p.metrics.patchErrors.WithLabelValues("sequence_mismatch").Inc()
		return nil, fmt.Errorf("%w: state=%d diff=%d", ErrSequenceMismatch, old.Slot.Sequence, diff.FromSequence)
	}
	if diff.ToSlot.Sequence <= diff.FromSequence {
		p.metrics.patchErrors.WithLabelValues("sequence_regress").Inc()
		return nil, fmt.Errorf("%w: from=%d to=%d", ErrSequenceRegress, diff.FromSequence, diff.ToSlot.Sequence)
	}

	protocols := make(map[engine.ProtocolID]engine.ProtocolState, len(old.Protocols)+len(diff.Protocols))
	for id, state := range old.Protocols {
		protocols[id] = state
	}

	for id, protocolDiff := range diff.Protocols {
		next, err := p.patchProtocol(id, old.Protocols, protocolDiff)
		if err != nil {
			return nil, err
		}
		protocols[id] = next
	}

	p.logger.Debug("state patched",
		"from_sequence", diff.FromSequence,
		"to_sequence", diff.ToSlot.Sequence,
		"protocols_changed", len(diff.Protocols),
	)
	return &engine.State{
		Cluster:   old.Cluster,
		Timestamp: diff.Timestamp,
		Slot:      diff.ToSlot,
		Protocols: protocols,
	}, nil
}

func (p *StatePatcher) patchProtocol(id engine.ProtocolID, prev map[engine.ProtocolID]engine.ProtocolState, d differ.ProtocolDiff) (engine.ProtocolState, error) {
	fn, ok := p.patchers[d.Schema]
	if !ok {
		p.metrics.patchErrors.WithLabelValues("unknown_schema").Inc()
		return engine.ProtocolState{}, fmt.Errorf("%w %q (protocol=%s)", ErrUnknownSchema, d.Schema, id)
	}

	var prevData any
	if state, exists := prev[id]; exists {
		// Schemas are versioned; a protocol never changes schema in place.
		if state.Schema != d.Schema {
			p.metrics.patchErrors.WithLabelValues("schema_mismatch").Inc()
			return engine.ProtocolState{}, fmt.Errorf("%w for protocol %s (old=%s, diff=%s)", ErrSchemaMismatch, id, state.Schema, d.Schema)
		}
		prevData = state.Data
	}

	data, err := fn(prevData, d.Data)
	if err != nil {
		p.metrics.patchErrors.WithLabelValues("protocol").Inc()
		return engine.ProtocolState{}, fmt.Errorf("patcher: protocol %s: %w", id, err)
	}

	return engine.ProtocolState{
		Meta:       d.Meta,
		SyncedSlot: d.SyncedSlot,
		Schema:     d.Schema,
		Data:       data,
		Error:      d.Error,
	}, nil
}
