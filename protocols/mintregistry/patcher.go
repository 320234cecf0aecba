package mintregistry

import "github.com/defistate/cpamm-engine/protocols/cpamm/types"

// Patcher constructs a new state for the mint system by applying a diff to a previous state.
// Since Mint contains no pointer fields, a direct copy is safe.
func Patcher(prevState []Mint, diff MintSystemDiff) ([]Mint, error) {
	newStateMap := make(map[types.Pubkey]Mint, len(prevState))
	for _, mint := range prevState {
		newStateMap[mint.Address] = mint
	}

	for _, address := range diff.Deletions {
		delete(newStateMap, address)
	}
	for _, updated := range diff.Updates {
		newStateMap[updated.Address] = updated
	}
	for _, added := range diff.Additions {
		newStateMap[added.Address] = added
	}

	finalState := make([]Mint, 0, len(newStateMap))
	for _, mint := range newStateMap {
		finalState = append(finalState, mint)
	}
	sortMints(finalState)
	return finalState, nil
}
