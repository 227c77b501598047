package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MovementKind identifies the protocol event a movement was derived from.
type MovementKind string

const (
	MovementSupply   MovementKind = "supply"
	MovementWithdraw MovementKind = "withdraw"
	MovementBorrow   MovementKind = "borrow"
	MovementRepay    MovementKind = "repay"
	MovementDeposit  MovementKind = "deposit" // vault share deposit
)

// Movement is a single historical protocol event normalized into the
// common schema. Amount is expressed in underlying-token units.
// Corresponds to the movements table in PostgreSQL.
type Movement struct {
	ProtocolToken   Token          `json:"protocolToken"`
	UnderlyingToken Token          `json:"underlyingToken"`
	Kind            MovementKind   `json:"kind"`
	BlockNumber     uint64         `json:"blockNumber"`
	TxHash          common.Hash    `json:"txHash"`
	LogIndex        uint           `json:"logIndex"`
	Amount          *big.Int       `json:"amount"`
	Product         string         `json:"product"`
	User            common.Address `json:"user"`
}
