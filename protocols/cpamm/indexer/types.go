package indexer

import (
	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// IndexedPools defines the methods for accessing indexed pool data.
type IndexedPools interface {
	GetByAddress(address types.Pubkey) (cpamm.Pool, bool)
	// GetByMints returns every pool trading the pair, in either order.
	GetByMints(mintA, mintB types.Pubkey) []cpamm.Pool
	All() []cpamm.Pool
}
