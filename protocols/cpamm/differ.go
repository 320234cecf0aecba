package cpamm

import "github.com/defistate/cpamm-engine/protocols/cpamm/types"

// --- Diff Structures with Helper Methods ---

type PoolSystemDiff struct {
	Additions []Pool         `json:"additions,omitempty"`
	Updates   []Pool         `json:"updates,omitempty"`
	Deletions []types.Pubkey `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two pool views.
// Both lists are indexed by address; pools present in both are compared field by field.
func Differ(old, new []Pool) PoolSystemDiff {
	oldPoolsMap := make(map[types.Pubkey]*Pool, len(old))
	for i := range old {
		oldPoolsMap[old[i].Address] = &old[i]
	}

	newPoolsMap := make(map[types.Pubkey]*Pool, len(new))
	for i := range new {
		newPoolsMap[new[i].Address] = &new[i]
	}

	var additions []Pool
	var updates []Pool
	var deletions []types.Pubkey

	for address, newPool := range newPoolsMap {
		oldPool, exists := oldPoolsMap[address]
		if !exists {
			additions = append(additions, *newPool.Clone())
			continue
		}
		if !oldPool.Equal(newPool) {
			updates = append(updates, *newPool.Clone())
		}
	}

	for address := range oldPoolsMap {
		if _, exists := newPoolsMap[address]; !exists {
			deletions = append(deletions, address)
		}
	}

	return PoolSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
