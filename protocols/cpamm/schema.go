package cpamm

import "github.com/defistate/cpamm-engine/engine"

// Schema is the decode contract of a []Pool view inside an engine.State.
const Schema engine.ProtocolSchema = "defistate/cpamm/PoolView@v1"
