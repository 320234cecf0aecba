package engine

type ProtocolName string
type ProtocolID string

// ProtocolSchema defines the decode contract for a protocol's data.
type ProtocolSchema string

type ProtocolMeta struct {
	Name ProtocolName `json:"name"`           // human label
	Tags []string     `json:"tags,omitempty"` // "dex", "registry", etc.
}

type ProtocolState struct {
	Meta ProtocolMeta `json:"meta"`

	// SyncedSlot is the slot the protocol's data was captured at.
	SyncedSlot *uint64 `json:"syncedSlot,omitempty"`

	// Schema is the decode contract for Data.
	// Example:
	// "defistate/cpamm/PoolView@v1"
	Schema ProtocolSchema `json:"schema"`

	// Data is the protocol view, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol is out-of-sync or failed for this slot.
	Error string `json:"error,omitempty"`
}

// SlotSummary identifies the point in time a snapshot was taken.
type SlotSummary struct {
	Slot       uint64 `json:"slot"`
	Timestamp  uint64 `json:"timestamp"`  // Unix seconds as reported by the clock.
	ReceivedAt int64  `json:"receivedAt"` // Unix nanoseconds when the snapshot was assembled.
	// Sequence increases by one per published snapshot, so several snapshots may share a slot.
	Sequence uint64 `json:"sequence"`
}

// State is the main data structure broadcast to subscribers.
type State struct {
	Cluster   string                       `json:"cluster"`
	Timestamp uint64                       `json:"timestamp"`
	Slot      SlotSummary                  `json:"slot"`
	Protocols map[ProtocolID]ProtocolState `json:"protocols"`
}

func (state *State) HasErrors() bool {
	for _, pr := range state.Protocols {
		if pr.Error != "" {
			return true
		}
	}
	return false
}
