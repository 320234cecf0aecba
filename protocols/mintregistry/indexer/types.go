package indexer

import (
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/protocols/mintregistry"
)

// IndexedMintSystem defines the methods for accessing indexed mint data.
type IndexedMintSystem interface {
	GetByAddress(address types.Pubkey) (mintregistry.Mint, bool)
	GetBySymbol(symbol string) (mintregistry.Mint, bool)
	All() []mintregistry.Mint
}
