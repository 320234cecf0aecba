package cpamm

import (
	"sync/atomic"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// Clock supplies the logical time a swap executes at.
type Clock interface {
	Slot() uint64
	UnixTimestamp() uint64
}

// CurrentPoint reads the point matching the pool's activation type.
func CurrentPoint(c Clock, activationType types.ActivationType) (uint64, error) {
	switch activationType {
	case types.ActivationSlot:
		return c.Slot(), nil
	case types.ActivationTimestamp:
		return c.UnixTimestamp(), nil
	default:
		return 0, errorsmod.Wrapf(poolerr.ErrInvalidInput, "activation type %d", activationType)
	}
}

// SystemClock derives slots from wall time at a fixed slot duration.
type SystemClock struct {
	Genesis      time.Time
	SlotDuration time.Duration
}

func (c SystemClock) Slot() uint64 {
	if c.SlotDuration <= 0 {
		return 0
	}
	elapsed := time.Since(c.Genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.SlotDuration)
}

func (c SystemClock) UnixTimestamp() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock is advanced explicitly. It is safe for concurrent use.
type ManualClock struct {
	slot      atomic.Uint64
	timestamp atomic.Uint64
}

// NewManualClock starts a clock at the given slot and timestamp.
func NewManualClock(slot, timestamp uint64) *ManualClock {
	c := &ManualClock{}
	c.Set(slot, timestamp)
	return c
}

func (c *ManualClock) Slot() uint64          { return c.slot.Load() }
func (c *ManualClock) UnixTimestamp() uint64 { return c.timestamp.Load() }

func (c *ManualClock) Set(slot, timestamp uint64) {
	c.slot.Store(slot)
	c.timestamp.Store(timestamp)
}

// Advance moves both coordinates forward.
func (c *ManualClock) Advance(slots, seconds uint64) {
	c.slot.Add(slots)
	c.timestamp.Add(seconds)
}
