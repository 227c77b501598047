package domain

import "math/big"

// UnwrapRate converts protocol-token balances into underlying units.
// Rate is the underlying amount (in the underlying token's smallest
// unit) corresponding to one whole protocol token (10^Decimals).
type UnwrapRate struct {
	ProtocolToken   Token    `json:"protocolToken"`
	UnderlyingToken Token    `json:"underlyingToken"`
	Rate            *big.Int `json:"rate"`
}
