package mintregistry

import (
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/transferfee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// Mint is a safe, structured representation of a token mint for external use.
type Mint struct {
	Address  types.Pubkey `json:"address"`
	Symbol   string       `json:"symbol"`
	Decimals uint8        `json:"decimals"`
	// TransferFee is the mint's active transfer-fee setting. The zero value charges nothing.
	TransferFee transferfee.Config `json:"transferFee"`
}
