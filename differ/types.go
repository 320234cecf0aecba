package differ

import "github.com/defistate/cpamm-engine/engine"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type ProtocolDiff struct {
	Meta engine.ProtocolMeta `json:"meta"`

	SyncedSlot *uint64 `json:"syncedSlot,omitempty"`

	// Schema is the decode contract for Data.
	// Examples:
	// "defistate/cpamm/PoolView@v1"
	// "defistate/mintregistry/MintView@v1"
	Schema engine.ProtocolSchema `json:"schema"`

	// Data is the protocol diff, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol is out-of-sync or failed for this slot.
	Error string `json:"error,omitempty"`
}

// StateDiff summarizes the changes between two consecutive snapshots.
type StateDiff struct {
	Timestamp    uint64                             `json:"timestamp"`
	FromSequence uint64                             `json:"fromSequence"`
	ToSlot       engine.SlotSummary                 `json:"toSlot"`
	Protocols    map[engine.ProtocolID]ProtocolDiff `json:"protocols"`
}

// IsEmpty reports whether no protocol changed.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Protocols) == 0
}
