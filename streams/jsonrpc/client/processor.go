package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/cpamm-engine/differ"
	"github.com/defistate/cpamm-engine/engine"
	"github.com/defistate/cpamm-engine/protocols/cpamm"
)

// ErrResync reports that the local state no longer lines up with the stream.
// The processor has dropped its state; the caller must resubscribe to get a fresh snapshot.
var ErrResync = errors.New("client: stream out of sequence, resubscribe required")

// StatePatcherFunc applies a diff to the previous state without modifying it.
type StatePatcherFunc func(prevState *engine.State, diff *differ.StateDiff) (newState *engine.State, err error)

// DecoderFunc decodes one protocol's raw data according to its schema.
type DecoderFunc func(schema engine.ProtocolSchema, data json.RawMessage) (any, error)

// Codec bundles what the processor needs to turn wire events into states.
type Codec struct {
	Patch       StatePatcherFunc
	DecodeState DecoderFunc
	DecodeDiff  DecoderFunc
}

// StreamProcessor rebuilds the server's state from a sequence of events.
// It owns no connection, so it can be fed from a socket, a file or a test.
// It is not safe for concurrent use.
type StreamProcessor struct {
	codec  Codec
	logger Logger

	current *engine.State
	states  chan *engine.State
	swaps   chan cpamm.EvtSwap2
}

func NewStreamProcessor(logger Logger, bufferSize uint, codec Codec) *StreamProcessor {
	return &StreamProcessor{
		codec:  codec,
		logger: logger,
		states: make(chan *engine.State, bufferSize),
		swaps:  make(chan cpamm.EvtSwap2, bufferSize),
	}
}

// State delivers every rebuilt state. Sends block while the buffer is full.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.states
}

// Swaps delivers executed swaps. Swaps are dropped while the buffer is full.
func (sp *StreamProcessor) Swaps() <-chan cpamm.EvtSwap2 {
	return sp.swaps
}

// Current returns the last rebuilt state, or nil before the first snapshot.
func (sp *StreamProcessor) Current() *engine.State {
	return sp.current
}

// Reset forgets the current state; the next diff is rejected until a snapshot arrives.
func (sp *StreamProcessor) Reset() {
	sp.current = nil
}

// ProcessMessage handles one raw SubscriptionEvent.
func (sp *StreamProcessor) ProcessMessage(raw json.RawMessage) error {
	received := time.Now()

	var event SubscriptionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("client: decode event: %w", err)
	}

	switch event.Type {
	case EventFull:
		state, err := sp.decodeFull(event.Payload)
		if err != nil {
			return err
		}
		sp.publish(state, event, received)
		return nil

	case EventDiff:
		state, err := sp.applyDiff(event.Payload)
		if err != nil {
			return err
		}
		sp.publish(state, event, received)
		return nil

	case EventSwap:
		return sp.forwardSwap(event.Payload)

	default:
		return fmt.Errorf("client: unknown event type %q", event.Type)
	}
}

func (sp *StreamProcessor) decodeFull(payload json.RawMessage) (*engine.State, error) {
	var w wireState
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("client: decode full state: %w", err)
	}

	protocols, err := decodeProtocols(w.Protocols, sp.codec.DecodeState, func(p wireProtocol, data any) engine.ProtocolState {
		return engine.ProtocolState{Meta: p.Meta, SyncedSlot: p.SyncedSlot, Schema: p.Schema, Data: data, Error: p.Error}
	})
	if err != nil {
		return nil, fmt.Errorf("client: full state: %w", err)
	}

	return &engine.State{
		Cluster:   w.Cluster,
		Timestamp: w.Timestamp,
		Slot:      w.Slot,
		Protocols: protocols,
	}, nil
}

func (sp *StreamProcessor) applyDiff(payload json.RawMessage) (*engine.State, error) {
	var w wireDiff
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("client: decode diff: %w", err)
	}

	if sp.current == nil {
		return nil, fmt.Errorf("client: diff %d->%d arrived before any full state", w.FromSequence, w.ToSlot.Sequence)
	}
	if have := sp.current.Slot.Sequence; w.FromSequence != have {
		sp.logger.Warn("diff does not follow current state, dropping state",
			"have_sequence", have,
			"diff_from", w.FromSequence,
			"diff_to", w.ToSlot.Sequence,
		)
		sp.Reset()
		return nil, fmt.Errorf("%w: have %d, diff starts at %d", ErrResync, have, w.FromSequence)
	}

	protocols, err := decodeProtocols(w.Protocols, sp.codec.DecodeDiff, func(p wireProtocol, data any) differ.ProtocolDiff {
		return differ.ProtocolDiff{Meta: p.Meta, SyncedSlot: p.SyncedSlot, Schema: p.Schema, Data: data, Error: p.Error}
	})
	if err != nil {
		return nil, fmt.Errorf("client: diff: %w", err)
	}

	next, err := sp.codec.Patch(sp.current, &differ.StateDiff{
		FromSequence: w.FromSequence,
		ToSlot:       w.ToSlot,
		Timestamp:    w.Timestamp,
		Protocols:    protocols,
	})
	if err != nil {
		// A failed patch leaves the state unusable for the next diff.
		sp.Reset()
		return nil, fmt.Errorf("%w: patch: %v", ErrResync, err)
	}
	next.Timestamp = w.Timestamp
	return next, nil
}

func (sp *StreamProcessor) forwardSwap(payload json.RawMessage) error {
	var evt cpamm.EvtSwap2
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("client: decode swap: %w", err)
	}

	select {
	case sp.swaps <- evt:
	default:
		sp.logger.Warn("swap buffer full, dropping swap", "pool", evt.Pool)
	}
	return nil
}

func (sp *StreamProcessor) publish(state *engine.State, event SubscriptionEvent, received time.Time) {
	sp.current = state

	failing := 0
	for _, p := range state.Protocols {
		if p.Error != "" {
			failing++
		}
	}
	now := time.Now()
	sp.logger.Debug("state rebuilt",
		"type", event.Type,
		"slot", state.Slot.Slot,
		"sequence", state.Slot.Sequence,
		"protocols", len(state.Protocols),
		"failing", failing,
		"server_ms", time.Unix(0, event.SentAt).Sub(time.Unix(0, state.Slot.ReceivedAt)).Milliseconds(),
		"transport_ms", received.Sub(time.Unix(0, event.SentAt)).Milliseconds(),
		"decode_ms", now.Sub(received).Milliseconds(),
	)

	sp.states <- state
}
