package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/cpamm-engine/engine"
)

var (
	ErrStateHasErrors  = errors.New("differ: snapshot carries protocol errors")
	ErrSequenceRegress = errors.New("differ: new snapshot does not advance the sequence")
	ErrUnknownSchema   = errors.New("differ: no differ registered for schema")
	ErrProtocolRemoved = errors.New("differ: protocol missing from new snapshot")
	ErrSchemaChanged   = errors.New("differ: protocol changed schema")
)

// ProtocolDiffer computes one protocol's diff. old is nil for a protocol the
// previous snapshot did not carry.
type ProtocolDiffer func(old, new any) (diff any, err error)

// StateDifferConfig holds one differ per schema and the differ's dependencies.
type StateDifferConfig struct {
	// Keyed by data contract, so two protocols sharing a schema share a differ.
	ProtocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
	Registry        prometheus.Registerer
	Logger          Logger
}

func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, fn := range c.ProtocolDiffers {
		if fn == nil {
			return fmt.Errorf("config: differ for schema %q is nil", schema)
		}
	}
	return nil
}

// StateDiffer turns two consecutive snapshots into a StateDiff.
type StateDiffer struct {
	metrics *Metrics
	logger  Logger
	differs map[engine.ProtocolSchema]ProtocolDiffer
}

func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	differs := make(map[engine.ProtocolSchema]ProtocolDiffer, len(cfg.ProtocolDiffers))
	for schema, fn := range cfg.ProtocolDiffers {
		differs[schema] = fn
	}

	return &StateDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
		differs: differs,
	}, nil
}

// emptyDiff is implemented by protocol diffs that can report "no change".
type emptyDiff interface {
	IsEmpty() bool
}

// Diff compares two error-free snapshots.
// Protocols whose diff reports IsEmpty are left out, except protocols new to
// this snapshot, which are always sent so the receiver learns about them.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer timer.ObserveDuration()

	if old.HasErrors() || new.HasErrors() {
		return nil, ErrStateHasErrors
	}
	if new.Slot.Sequence <= old.Slot.Sequence {
		return nil, fmt.Errorf("%w: %d -> %d", ErrSequenceRegress, old.Slot.Sequence, new.Slot.Sequence)
	}
	for id := range old.Protocols {
		if _, ok := new.Protocols[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrProtocolRemoved, id)
		}
	}

	changed := make(map[engine.ProtocolID]ProtocolDiff)
	for id, next := range new.Protocols {
		prev, seen := old.Protocols[id]
		var prevData any
		if seen {
			if prev.Schema != next.Schema {
				return nil, fmt.Errorf("%w: %s (%s -> %s)", ErrSchemaChanged, id, prev.Schema, next.Schema)
			}
			prevData = prev.Data
		}

		fn, ok := d.differs[next.Schema]
		if !ok {
			return nil, fmt.Errorf("%w %q (protocol=%s)", ErrUnknownSchema, next.Schema, id)
		}
		data, err := fn(prevData, next.Data)
		if err != nil {
			d.metrics.diffErrors.WithLabelValues(string(next.Schema)).Inc()
			return nil, fmt.Errorf("differ: protocol %s: %w", id, err)
		}
		if e, ok := data.(emptyDiff); ok && e.IsEmpty() && seen {
			continue
		}

		changed[id] = ProtocolDiff{
			Meta:       next.Meta,
			SyncedSlot: next.SyncedSlot,
			Schema:     next.Schema,
			Data:       data,
		}
	}

	d.logger.Debug("state diffed",
		"from_sequence", old.Slot.Sequence,
		"to_sequence", new.Slot.Sequence,
		"protocols_changed", len(changed),
	)

	return &StateDiff{
		Timestamp:    uint64(time.Now().UnixNano()),
		FromSequence: old.Slot.Sequence,
		ToSlot:       new.Slot,
		Protocols:    changed,
	}, nil
}
