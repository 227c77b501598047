package domain

import "math/big"

// TVLSnapshot is the total value locked in a single market at a block.
// Total equals PoolSide + PeerToPeer after any product-specific
// exchange-rate adjustment (Compound-family totals are converted into
// protocol-token units before summing).
// Corresponds to the tvl_snapshots table in ClickHouse.
type TVLSnapshot struct {
	Product       string   `json:"product"`
	ProtocolToken Token    `json:"protocolToken"`
	BlockNumber   uint64   `json:"blockNumber"`
	PoolSide      *big.Int `json:"poolSide"`
	PeerToPeer    *big.Int `json:"peerToPeer"`
	Total         *big.Int `json:"total"`
}
