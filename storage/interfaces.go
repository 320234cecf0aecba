package storage

import (
	"context"

	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// SwapEventStore persists committed swaps. Records are append-only.
type SwapEventStore interface {
	// Insert adds a record. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, r *SwapRecord) error

	// InsertBulk adds records atomically. Fails the entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*SwapRecord) error

	// GetByPoolTimeRange returns the swaps of pool within [start, end), ordered by ID.
	GetByPoolTimeRange(ctx context.Context, pool types.Pubkey, start, end uint64) ([]*SwapRecord, error)

	// GetByID returns a single record or ErrNotFound.
	GetByID(ctx context.Context, id uint64) (*SwapRecord, error)

	// LastID returns the highest stored ID, or zero for an empty store.
	LastID(ctx context.Context) (uint64, error)
}
