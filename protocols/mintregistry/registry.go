package mintregistry

import (
	"bytes"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"

	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/transferfee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/poolerr"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// Registry is the set of mints known to the engine. It resolves transfer fees for swaps.
type Registry struct {
	mu    sync.RWMutex
	mints map[types.Pubkey]Mint
}

// NewRegistry creates a registry seeded with mints. Later duplicates replace earlier ones.
func NewRegistry(mints ...Mint) *Registry {
	r := &Registry{mints: make(map[types.Pubkey]Mint, len(mints))}
	for _, m := range mints {
		r.mints[m.Address] = m
	}
	return r
}

// Put adds or replaces a mint.
func (r *Registry) Put(m Mint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mints[m.Address] = m
}

// Remove drops a mint. Removing an unknown mint is a no-op.
func (r *Registry) Remove(address types.Pubkey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mints, address)
}

// Get returns the mint at address.
func (r *Registry) Get(address types.Pubkey) (Mint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mints[address]
	if !ok {
		return Mint{}, errorsmod.Wrapf(poolerr.ErrMintNotFound, "mint %s", address)
	}
	return m, nil
}

// TransferFee resolves the transfer-fee setting of a registered mint.
func (r *Registry) TransferFee(address types.Pubkey) (transferfee.Config, error) {
	m, err := r.Get(address)
	if err != nil {
		return transferfee.Config{}, err
	}
	return m.TransferFee, nil
}

// View returns every mint ordered by address.
func (r *Registry) View() []Mint {
	r.mu.RLock()
	out := make([]Mint, 0, len(r.mints))
	for _, m := range r.mints {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sortMints(out)
	return out
}

func sortMints(mints []Mint) {
	sort.Slice(mints, func(i, j int) bool {
		return bytes.Compare(mints[i].Address[:], mints[j].Address[:]) < 0
	})
}
