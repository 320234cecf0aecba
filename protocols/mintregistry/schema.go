package mintregistry

import "github.com/defistate/cpamm-engine/engine"

// Schema is the decode contract of a []Mint view inside an engine.State.
const Schema engine.ProtocolSchema = "defistate/mintregistry/MintView@v1"
