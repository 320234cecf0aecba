package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/storage"
)

// SwapEventStore is an in-memory implementation of storage.SwapEventStore.
type SwapEventStore struct {
	mu   sync.RWMutex
	data map[uint64]*storage.SwapRecord
	last uint64
}

// NewSwapEventStore creates a new in-memory swap event store.
func NewSwapEventStore() *SwapEventStore {
	return &SwapEventStore{
		data: make(map[uint64]*storage.SwapRecord),
	}
}

// Compile-time interface check.
var _ storage.SwapEventStore = (*SwapEventStore)(nil)

// Insert adds a record. Returns ErrDuplicateKey if the ID exists.
func (s *SwapEventStore) Insert(_ context.Context, r *storage.SwapRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[r.ID]; ok {
		return storage.ErrDuplicateKey
	}
	s.put(r)
	return nil
}

// InsertBulk adds records atomically. Fails the entire batch on any duplicate.
func (s *SwapEventStore) InsertBulk(_ context.Context, records []*storage.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check existing and intra-batch duplicates before writing anything.
	batch := make(map[uint64]bool, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, ok := s.data[r.ID]; ok || batch[r.ID] {
			return storage.ErrDuplicateKey
		}
		batch[r.ID] = true
	}

	for _, r := range records {
		s.put(r)
	}
	return nil
}

// put stores a copy; callers hold the write lock.
func (s *SwapEventStore) put(r *storage.SwapRecord) {
	cp := *r
	s.data[r.ID] = &cp
	if r.ID > s.last {
		s.last = r.ID
	}
}

// GetByPoolTimeRange returns the swaps of pool within [start, end), ordered by ID.
func (s *SwapEventStore) GetByPoolTimeRange(_ context.Context, pool types.Pubkey, start, end uint64) ([]*storage.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.SwapRecord
	for _, r := range s.data {
		if r.Pool == pool && r.Timestamp >= start && r.Timestamp < end {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByID returns a single record or ErrNotFound.
func (s *SwapEventStore) GetByID(_ context.Context, id uint64) (*storage.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// LastID returns the highest stored ID, or zero for an empty store.
func (s *SwapEventStore) LastID(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, nil
}
