package cpamm

import (
	"bytes"
	"sort"

	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// Patcher constructs a new pool view by applying diff to prevState.
// Every pool in the result is a deep copy; nothing is shared with the inputs.
func Patcher(prevState []Pool, diff PoolSystemDiff) ([]Pool, error) {
	newStateMap := make(map[types.Pubkey]Pool, len(prevState))
	for i := range prevState {
		newStateMap[prevState[i].Address] = *prevState[i].Clone()
	}

	for _, address := range diff.Deletions {
		delete(newStateMap, address)
	}
	for i := range diff.Updates {
		newStateMap[diff.Updates[i].Address] = *diff.Updates[i].Clone()
	}
	for i := range diff.Additions {
		newStateMap[diff.Additions[i].Address] = *diff.Additions[i].Clone()
	}

	finalState := make([]Pool, 0, len(newStateMap))
	for _, pool := range newStateMap {
		finalState = append(finalState, pool)
	}
	sort.Slice(finalState, func(i, j int) bool {
		return bytes.Compare(finalState[i].Address[:], finalState[j].Address[:]) < 0
	})
	return finalState, nil
}
