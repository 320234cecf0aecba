package cpamm

import (
	"bytes"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

type poolEntry struct {
	mu   sync.Mutex
	pool *Pool
}

// Registry holds pools and serializes mutations per pool.
// Swaps on different pools proceed in parallel.
type Registry struct {
	mu    sync.RWMutex
	pools map[types.Pubkey]*poolEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[types.Pubkey]*poolEntry)}
}

// Add validates p and stores a private copy of it.
func (r *Registry) Add(p *Pool) error {
	if err := p.Validate(); err != nil {
		return errorsmod.Wrapf(err, "pool %s", p.Address)
	}
	stored := p.Clone()
	reserveA, reserveB, err := stored.Reserves()
	if err != nil {
		return err
	}
	stored.ReserveA, stored.ReserveB = reserveA, reserveB

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pools[p.Address]; exists {
		return errorsmod.Wrapf(poolerr.ErrInvalidInput, "pool %s already registered", p.Address)
	}
	r.pools[p.Address] = &poolEntry{pool: stored}
	return nil
}

// Remove drops a pool. Removing an unknown pool is a no-op.
func (r *Registry) Remove(address types.Pubkey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pools, address)
}

func (r *Registry) entry(address types.Pubkey) (*poolEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.pools[address]
	if !ok {
		return nil, errorsmod.Wrapf(poolerr.ErrPoolNotFound, "pool %s", address)
	}
	return e, nil
}

// Get returns a copy of the pool's current state.
func (r *Registry) Get(address types.Pubkey) (*Pool, error) {
	e, err := r.entry(address)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Clone(), nil
}

// Update runs fn against a copy of the pool under the pool's lock and commits the copy
// only if fn succeeds.
func (r *Registry) Update(address types.Pubkey, fn func(p *Pool) error) error {
	e, err := r.entry(address)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.pool.Clone()
	if err := fn(next); err != nil {
		return err
	}
	e.pool = next
	return nil
}

// View returns copies of every pool, ordered by address.
func (r *Registry) View() []Pool {
	r.mu.RLock()
	entries := make([]*poolEntry, 0, len(r.pools))
	for _, e := range r.pools {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Pool, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, *e.pool.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Len is the number of registered pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
