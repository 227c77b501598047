package domain

import "math/big"

// PositionSide distinguishes supply claims from borrow debts.
type PositionSide string

const (
	SideSupply PositionSide = "supply"
	SideBorrow PositionSide = "borrow"
)

// UnderlyingBalance is one underlying-asset component of a position.
type UnderlyingBalance struct {
	Token   Token    `json:"token"`
	Balance *big.Int `json:"balance"`
}

// Position is a user's current balance in a protocol token plus its
// decomposition into underlying token amounts. Zero-balance positions
// are never produced.
type Position struct {
	ProtocolToken Token               `json:"protocolToken"`
	Side          PositionSide        `json:"side"`
	Balance       *big.Int            `json:"balance"`
	Underlying    []UnderlyingBalance `json:"underlying"`
}
