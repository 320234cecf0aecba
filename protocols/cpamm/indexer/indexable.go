package indexer

import (
	"bytes"

	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// Indexer builds IndexedPools views.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed pool system from a raw slice of pools.
func (i *Indexer) Index(pools []cpamm.Pool) IndexedPools {
	return NewIndexablePoolSystem(pools)
}

type mintPair [2]types.Pubkey

func pairOf(a, b types.Pubkey) mintPair {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return mintPair{a, b}
}

// IndexablePoolSystem provides fast, indexed access to pool data.
type IndexablePoolSystem struct {
	byAddress map[types.Pubkey]int
	byPair    map[mintPair][]int
	all       []cpamm.Pool
}

// NewIndexablePoolSystem creates a new indexed pool system from a deep copy of pools.
func NewIndexablePoolSystem(pools []cpamm.Pool) *IndexablePoolSystem {
	all := make([]cpamm.Pool, len(pools))
	byAddress := make(map[types.Pubkey]int, len(pools))
	byPair := make(map[mintPair][]int, len(pools))
	for i := range pools {
		all[i] = *pools[i].Clone()
		p := &all[i]
		byAddress[p.Address] = i
		pair := pairOf(p.TokenAMint, p.TokenBMint)
		byPair[pair] = append(byPair[pair], i)
	}

	return &IndexablePoolSystem{
		byAddress: byAddress,
		byPair:    byPair,
		all:       all,
	}
}

// GetByAddress retrieves a pool by its account key.
func (ips *IndexablePoolSystem) GetByAddress(address types.Pubkey) (cpamm.Pool, bool) {
	i, ok := ips.byAddress[address]
	if !ok {
		return cpamm.Pool{}, false
	}
	return *ips.all[i].Clone(), true
}

func (ips *IndexablePoolSystem) GetByMints(mintA, mintB types.Pubkey) []cpamm.Pool {
	indices := ips.byPair[pairOf(mintA, mintB)]
	out := make([]cpamm.Pool, 0, len(indices))
	for _, i := range indices {
		out = append(out, *ips.all[i].Clone())
	}
	return out
}

// All returns deep copies of every pool.
func (ips *IndexablePoolSystem) All() []cpamm.Pool {
	out := make([]cpamm.Pool, len(ips.all))
	for i := range ips.all {
		out[i] = *ips.all[i].Clone()
	}
	return out
}
