package domain

import "github.com/ethereum/go-ethereum/common"

// Token represents ERC-20 metadata for a token contract.
// Used for both protocol tokens (claims on the protocol) and the
// underlying assets they are denominated in.
type Token struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// PoolMetadata pairs a protocol token with its single underlying token.
// Every protocol token resolves to exactly one underlying token.
type PoolMetadata struct {
	ProtocolToken   Token `json:"protocolToken"`
	UnderlyingToken Token `json:"underlyingToken"`
}
