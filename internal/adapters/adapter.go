// Package adapters defines the normalized interface every protocol
// adapter implements, and the registry of known products.
package adapters

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lending-adapters/internal/domain"
)

// Adapter translates one protocol's on-chain state into the common
// schema. All operations are single best-effort reads: RPC failures
// propagate and a single market failure aborts the aggregate call.
type Adapter interface {
	// Product identifies the adapter's protocol deployment.
	Product() domain.Product

	// ProtocolTokens returns all protocol tokens known to the product's
	// on-chain registry.
	ProtocolTokens(ctx context.Context) ([]domain.Token, error)

	// Positions returns the user's non-zero balances across all markets
	// at blockNumber (nil for latest), with underlying decomposition.
	Positions(ctx context.Context, user common.Address, blockNumber *big.Int) ([]domain.Position, error)

	// Movements returns historical events of the given kind for one
	// market and user within [fromBlock, toBlock].
	Movements(ctx context.Context, kind domain.MovementKind, protocolToken, user common.Address, fromBlock, toBlock uint64) ([]domain.Movement, error)

	// TVL returns per-market total-value-locked snapshots at blockNumber.
	TVL(ctx context.Context, blockNumber *big.Int) ([]domain.TVLSnapshot, error)

	// Unwrap returns the conversion from one whole protocol token into
	// underlying-token units at blockNumber.
	Unwrap(ctx context.Context, protocolToken common.Address, blockNumber *big.Int) (domain.UnwrapRate, error)
}
