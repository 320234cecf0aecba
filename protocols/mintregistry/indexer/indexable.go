package indexer

import (
	"strings"

	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/protocols/mintregistry"
)

// Indexer builds IndexedMintSystem views.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed mint system from a raw slice of mints.
func (i *Indexer) Index(mints []mintregistry.Mint) IndexedMintSystem {
	return NewIndexableMintSystem(mints)
}

// IndexableMintSystem provides fast, indexed access to mint data.
type IndexableMintSystem struct {
	byAddress map[types.Pubkey]mintregistry.Mint
	bySymbol  map[string]mintregistry.Mint
	all       []mintregistry.Mint
}

// NewIndexableMintSystem creates a new indexed mint system from a raw slice.
// Symbols are matched case-insensitively; the first mint with a symbol wins.
func NewIndexableMintSystem(mints []mintregistry.Mint) *IndexableMintSystem {
	byAddress := make(map[types.Pubkey]mintregistry.Mint, len(mints))
	bySymbol := make(map[string]mintregistry.Mint, len(mints))

	for _, m := range mints {
		byAddress[m.Address] = m
		if m.Symbol == "" {
			continue
		}
		key := strings.ToUpper(m.Symbol)
		if _, taken := bySymbol[key]; !taken {
			bySymbol[key] = m
		}
	}

	all := make([]mintregistry.Mint, len(mints))
	copy(all, mints)
	return &IndexableMintSystem{
		byAddress: byAddress,
		bySymbol:  bySymbol,
		all:       all,
	}
}

// GetByAddress retrieves a mint by its account key.
func (ims *IndexableMintSystem) GetByAddress(address types.Pubkey) (mintregistry.Mint, bool) {
	m, ok := ims.byAddress[address]
	return m, ok
}

// GetBySymbol retrieves a mint by its ticker symbol.
func (ims *IndexableMintSystem) GetBySymbol(symbol string) (mintregistry.Mint, bool) {
	m, ok := ims.bySymbol[strings.ToUpper(symbol)]
	return m, ok
}

// All returns a defensive copy of the slice of all mints in the system.
func (ims *IndexableMintSystem) All() []mintregistry.Mint {
	allCopy := make([]mintregistry.Mint, len(ims.all))
	copy(allCopy, ims.all)
	return allCopy
}
