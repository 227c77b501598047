package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"lending-adapters/internal/domain"
)

// MovementStore provides access to movements storage.
type MovementStore interface {
	// Insert adds a movement. Returns ErrDuplicateKey if
	// (product, tx_hash, log_index) exists.
	Insert(ctx context.Context, m *domain.Movement) error

	// InsertBulk adds multiple movements atomically. Fails entire batch
	// on any duplicate.
	InsertBulk(ctx context.Context, movements []*domain.Movement) error

	// GetByUser retrieves a user's movements for a product, ordered by
	// block number ASC, log index ASC.
	GetByUser(ctx context.Context, product string, user common.Address) ([]*domain.Movement, error)

	// GetByPool retrieves movements for one market within
	// [fromBlock, toBlock], ordered by block number ASC, log index ASC.
	GetByPool(ctx context.Context, product string, protocolToken common.Address, fromBlock, toBlock uint64) ([]*domain.Movement, error)
}

// TVLSnapshotStore provides access to tvl_snapshots storage.
type TVLSnapshotStore interface {
	// InsertBulk adds multiple snapshots. Fails entire batch on a
	// duplicate (product, protocol_token, block_number).
	InsertBulk(ctx context.Context, snapshots []*domain.TVLSnapshot) error

	// GetByPool retrieves all snapshots for one market, ordered by
	// block number ASC.
	GetByPool(ctx context.Context, product string, protocolToken common.Address) ([]*domain.TVLSnapshot, error)
}
