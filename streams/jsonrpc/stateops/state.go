package stateops

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/cpamm-engine/differ"
	"github.com/defistate/cpamm-engine/engine"
	"github.com/defistate/cpamm-engine/patcher"
	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/mintregistry"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// typedDiffer adapts a protocol differ to the generic engine.
// A nil old view, for a protocol the previous snapshot lacked, diffs as empty.
func typedDiffer[V, D any](diff func(old, new V) D) differ.ProtocolDiffer {
	return func(old, new any) (any, error) {
		prev, _ := old.(V)
		next, ok := new.(V)
		if !ok {
			return nil, fmt.Errorf("stateops: differ got %T", new)
		}
		return diff(prev, next), nil
	}
}

// typedPatcher adapts a protocol patcher the same way.
func typedPatcher[V, D any](patch func(prev V, diff D) (V, error)) patcher.PatcherFunc {
	return func(prevState, diffData any) (any, error) {
		prev, _ := prevState.(V)
		d, ok := diffData.(D)
		if !ok {
			return nil, fmt.Errorf("stateops: patcher got %T", diffData)
		}
		return patch(prev, d)
	}
}

// StateOps bundles the per-schema differ and patcher of a cpamm state stream.
//
// The server diffs consecutive snapshots with it, a client patches them back.
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	protocolDiffers := map[engine.ProtocolSchema]differ.ProtocolDiffer{
		cpamm.Schema:        typedDiffer(cpamm.Differ),
		mintregistry.Schema: typedDiffer(mintregistry.Differ),
	}

	protocolPatchers := map[engine.ProtocolSchema]patcher.PatcherFunc{
		cpamm.Schema:        typedPatcher(cpamm.Patcher),
		mintregistry.Schema: typedPatcher(mintregistry.Patcher),
	}

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		ProtocolDiffers: protocolDiffers,
		Logger:          logger,
		Registry:        prometheusRegistry,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patchers: protocolPatchers,
		Registry: prometheusRegistry,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
	}, nil
}

// DecodeStateJSON decodes a protocol view of a full snapshot.
func (ops *StateOps) DecodeStateJSON(schema engine.ProtocolSchema, data json.RawMessage) (any, error) {
	switch schema {
	case cpamm.Schema:
		return decode[[]cpamm.Pool](data)
	case mintregistry.Schema:
		return decode[[]mintregistry.Mint](data)
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}

// DecodeStateDiffJSON decodes a protocol diff.
func (ops *StateOps) DecodeStateDiffJSON(schema engine.ProtocolSchema, data json.RawMessage) (any, error) {
	switch schema {
	case cpamm.Schema:
		return decode[cpamm.PoolSystemDiff](data)
	case mintregistry.Schema:
		return decode[mintregistry.MintSystemDiff](data)
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}

func decode[T any](data json.RawMessage) (any, error) {
	var typed T
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	return typed, nil
}
