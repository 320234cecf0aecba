package client

import (
	"encoding/json"
	"fmt"

	"github.com/defistate/cpamm-engine/engine"
)

// Event types carried by SubscriptionEvent.Type.
const (
	EventFull = "full"
	EventDiff = "diff"
	EventSwap = "swap"
)

// SubscriptionEvent is the envelope of every stream notification.
// SentAt is the server's send time in unix nanoseconds.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// wireState is engine.State with protocol data left undecoded until its schema is known.
type wireState struct {
	Cluster   string                             `json:"cluster"`
	Timestamp uint64                             `json:"timestamp"`
	Slot      engine.SlotSummary                 `json:"slot"`
	Protocols map[engine.ProtocolID]wireProtocol `json:"protocols"`
}

// wireDiff is differ.StateDiff with the same treatment.
type wireDiff struct {
	FromSequence uint64                             `json:"fromSequence"`
	ToSlot       engine.SlotSummary                 `json:"toSlot"`
	Timestamp    uint64                             `json:"timestamp"`
	Protocols    map[engine.ProtocolID]wireProtocol `json:"protocols"`
}

// wireProtocol is shared by full states and diffs; both carry the same envelope.
type wireProtocol struct {
	Meta       engine.ProtocolMeta   `json:"meta"`
	SyncedSlot *uint64               `json:"syncedSlot,omitempty"`
	Schema     engine.ProtocolSchema `json:"schema"`
	Error      string                `json:"error,omitempty"`
	Data       json.RawMessage       `json:"data,omitempty"`
}

// decodeProtocols turns each raw entry into T via its schema's decoder.
func decodeProtocols[T any](
	raw map[engine.ProtocolID]wireProtocol,
	decode DecoderFunc,
	build func(p wireProtocol, data any) T,
) (map[engine.ProtocolID]T, error) {
	out := make(map[engine.ProtocolID]T, len(raw))
	for id, p := range raw {
		data, err := decode(p.Schema, p.Data)
		if err != nil {
			return nil, fmt.Errorf("protocol %s (%s): %w", id, p.Schema, err)
		}
		out[id] = build(p, data)
	}
	return out, nil
}
