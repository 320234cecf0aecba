package mintregistry

import "github.com/defistate/cpamm-engine/protocols/cpamm/types"

type MintSystemDiff struct {
	Additions []Mint         `json:"additions,omitempty"`
	Updates   []Mint         `json:"updates,omitempty"`
	Deletions []types.Pubkey `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d MintSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two states of the mint system.
// Mints are keyed by address; Mint has no pointer fields so it compares by value.
func Differ(old, new []Mint) MintSystemDiff {
	oldMintsMap := make(map[types.Pubkey]Mint, len(old))
	for _, mint := range old {
		oldMintsMap[mint.Address] = mint
	}

	newMintsMap := make(map[types.Pubkey]Mint, len(new))
	for _, mint := range new {
		newMintsMap[mint.Address] = mint
	}

	var additions []Mint
	var updates []Mint
	var deletions []types.Pubkey

	for address, newMint := range newMintsMap {
		oldMint, exists := oldMintsMap[address]
		if !exists {
			additions = append(additions, newMint)
		} else if oldMint != newMint {
			updates = append(updates, newMint)
		}
	}

	for address := range oldMintsMap {
		if _, exists := newMintsMap[address]; !exists {
			deletions = append(deletions, address)
		}
	}

	return MintSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
