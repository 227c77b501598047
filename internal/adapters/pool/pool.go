// Package pool implements the shared adapter logic once, parameterized
// by a Protocol capability set. Compound- and Aave-style optimizers and
// the vault product differ only in their strategies: how markets are
// enumerated, how balances are read, and how movement filters are built.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"lending-adapters/internal/domain"
	"lending-adapters/internal/evm"
	"lending-adapters/internal/metadata"
	"lending-adapters/internal/observability"
)

// ErrUnsupportedMovement is returned when a product has no event for
// the requested movement kind.
var ErrUnsupportedMovement = errors.New("movement kind not supported by product")

// ParsedMovement is one decoded protocol event.
type ParsedMovement struct {
	User   common.Address
	Market common.Address
	Amount *big.Int
}

// Protocol is the capability set one product supplies. Markets and
// Underlying double as the metadata source; Underlying must map "no
// underlying asset" call failures to the zero address.
type Protocol interface {
	Product() domain.Product

	Markets(ctx context.Context) ([]common.Address, error)
	Underlying(ctx context.Context, market common.Address) (common.Address, error)

	// Balance reads the user's current balance for one side of a market,
	// in the units the product accounts positions in.
	Balance(ctx context.Context, side domain.PositionSide, market, user common.Address, blockNumber *big.Int) (*big.Int, error)

	// UnderlyingAmount converts a position balance into underlying units.
	UnderlyingAmount(ctx context.Context, meta domain.PoolMetadata, balance *big.Int, blockNumber *big.Int) (*big.Int, error)

	// UnwrapRate returns underlying units per one whole protocol token.
	UnwrapRate(ctx context.Context, meta domain.PoolMetadata, blockNumber *big.Int) (*big.Int, error)

	// Totals reports a market's pool-side and peer-to-peer-side locked
	// amounts, already adjusted into protocol-token units where the
	// product requires it.
	Totals(ctx context.Context, market common.Address, blockNumber *big.Int) (poolSide, peerToPeer *big.Int, err error)

	// MovementFilter builds the log filter for one kind, market and user.
	// Topic argument order is product-specific.
	MovementFilter(kind domain.MovementKind, market, user common.Address, fromBlock, toBlock uint64) (ethereum.FilterQuery, error)

	// ParseMovement decodes one log returned by MovementFilter.
	ParseMovement(kind domain.MovementKind, lg types.Log) (ParsedMovement, error)
}

// Adapter is the generic adapter over a Protocol strategy.
type Adapter struct {
	protocol Protocol
	backend  evm.Backend
	meta     *metadata.Provider
	logger   *log.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithMetadataCacheDir persists built metadata under dir, keyed by the
// product identifier.
func WithMetadataCacheDir(dir string) Option {
	return func(a *Adapter) {
		a.meta = metadata.NewProvider(a.backend, a.protocol, a.protocol.Product().ID,
			metadata.WithFileCache(dir))
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// New creates an adapter for the given protocol strategy.
func New(protocol Protocol, backend evm.Backend, opts ...Option) *Adapter {
	a := &Adapter{
		protocol: protocol,
		backend:  backend,
		logger:   log.New(os.Stdout, "["+protocol.Product().ID+"] ", log.LstdFlags),
	}
	a.meta = metadata.NewProvider(backend, protocol, protocol.Product().ID)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Product identifies the adapter's protocol deployment.
func (a *Adapter) Product() domain.Product {
	return a.protocol.Product()
}

// ProtocolTokens returns all protocol tokens known to the registry.
func (a *Adapter) ProtocolTokens(ctx context.Context) ([]domain.Token, error) {
	start := time.Now()
	m, err := a.meta.Get(ctx)
	observability.RecordAdapterOp(a.Product().ID, "protocol_tokens", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return m.Tokens(), nil
}

// Positions returns the user's non-zero balances across all markets.
// Per-market reads run concurrently; the first failure aborts.
func (a *Adapter) Positions(ctx context.Context, user common.Address, blockNumber *big.Int) (positions []domain.Position, err error) {
	start := time.Now()
	defer func() {
		observability.RecordAdapterOp(a.Product().ID, "positions", time.Since(start).Seconds(), err)
	}()

	m, err := a.meta.Get(ctx)
	if err != nil {
		return nil, err
	}

	results := make(chan domain.Position, 2*len(m))
	g, gctx := errgroup.WithContext(ctx)
	for market, meta := range m {
		g.Go(func() error {
			for _, side := range []domain.PositionSide{domain.SideSupply, domain.SideBorrow} {
				balance, err := a.protocol.Balance(gctx, side, market, user, blockNumber)
				if err != nil {
					return fmt.Errorf("%s balance in %s: %w", side, meta.ProtocolToken.Symbol, err)
				}
				if balance == nil || balance.Sign() == 0 {
					continue
				}

				underlying, err := a.protocol.UnderlyingAmount(gctx, meta, balance, blockNumber)
				if err != nil {
					return fmt.Errorf("decompose %s position in %s: %w", side, meta.ProtocolToken.Symbol, err)
				}

				results <- domain.Position{
					ProtocolToken: meta.ProtocolToken,
					Side:          side,
					Balance:       balance,
					Underlying: []domain.UnderlyingBalance{
						{Token: meta.UnderlyingToken, Balance: underlying},
					},
				}
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	for p := range results {
		positions = append(positions, p)
	}
	observability.RecordPositions(a.Product().ID, len(positions))
	return positions, nil
}

// Movements returns historical events of one kind for a market and user.
func (a *Adapter) Movements(ctx context.Context, kind domain.MovementKind, protocolToken, user common.Address, fromBlock, toBlock uint64) (movements []domain.Movement, err error) {
	start := time.Now()
	defer func() {
		observability.RecordAdapterOp(a.Product().ID, "movements", time.Since(start).Seconds(), err)
	}()

	m, err := a.meta.Get(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := m.Get(protocolToken)
	if err != nil {
		return nil, err
	}

	query, err := a.protocol.MovementFilter(kind, protocolToken, user, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}

	logs, err := a.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter %s logs: %w", kind, err)
	}

	for _, lg := range logs {
		parsed, err := a.protocol.ParseMovement(kind, lg)
		if err != nil {
			return nil, fmt.Errorf("parse %s log %s: %w", kind, lg.TxHash.Hex(), err)
		}
		if parsed.Market != protocolToken {
			return nil, fmt.Errorf("log %s: market %s does not match queried pool %s",
				lg.TxHash.Hex(), parsed.Market.Hex(), protocolToken.Hex())
		}

		movements = append(movements, domain.Movement{
			ProtocolToken:   meta.ProtocolToken,
			UnderlyingToken: meta.UnderlyingToken,
			Kind:            kind,
			BlockNumber:     lg.BlockNumber,
			TxHash:          lg.TxHash,
			LogIndex:        lg.Index,
			Amount:          parsed.Amount,
			Product:         a.Product().ID,
			User:            parsed.User,
		})
	}

	observability.RecordMovements(a.Product().ID, string(kind), len(movements))
	return movements, nil
}

// TVL returns per-market locked totals at blockNumber. Per-market reads
// run concurrently; the first failure aborts.
func (a *Adapter) TVL(ctx context.Context, blockNumber *big.Int) (snapshots []domain.TVLSnapshot, err error) {
	start := time.Now()
	defer func() {
		observability.RecordAdapterOp(a.Product().ID, "tvl", time.Since(start).Seconds(), err)
	}()

	m, err := a.meta.Get(ctx)
	if err != nil {
		return nil, err
	}

	var block uint64
	if blockNumber != nil {
		block = blockNumber.Uint64()
	}

	results := make(chan domain.TVLSnapshot, len(m))
	g, gctx := errgroup.WithContext(ctx)
	for market, meta := range m {
		g.Go(func() error {
			poolSide, peerToPeer, err := a.protocol.Totals(gctx, market, blockNumber)
			if err != nil {
				return fmt.Errorf("totals for %s: %w", meta.ProtocolToken.Symbol, err)
			}
			results <- domain.TVLSnapshot{
				Product:       a.Product().ID,
				ProtocolToken: meta.ProtocolToken,
				BlockNumber:   block,
				PoolSide:      poolSide,
				PeerToPeer:    peerToPeer,
				Total:         new(big.Int).Add(poolSide, peerToPeer),
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	for s := range results {
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

// Unwrap returns the conversion rate from one whole protocol token into
// underlying units.
func (a *Adapter) Unwrap(ctx context.Context, protocolToken common.Address, blockNumber *big.Int) (rate domain.UnwrapRate, err error) {
	start := time.Now()
	defer func() {
		observability.RecordAdapterOp(a.Product().ID, "unwrap", time.Since(start).Seconds(), err)
	}()

	m, err := a.meta.Get(ctx)
	if err != nil {
		return domain.UnwrapRate{}, err
	}
	meta, err := m.Get(protocolToken)
	if err != nil {
		return domain.UnwrapRate{}, err
	}

	r, err := a.protocol.UnwrapRate(ctx, meta, blockNumber)
	if err != nil {
		return domain.UnwrapRate{}, err
	}

	return domain.UnwrapRate{
		ProtocolToken:   meta.ProtocolToken,
		UnderlyingToken: meta.UnderlyingToken,
		Rate:            r,
	}, nil
}

// OneToOneUnderlying is the decomposition shared by the optimizer
// products: position balances are already denominated in underlying
// units.
func OneToOneUnderlying(balance *big.Int) *big.Int {
	return new(big.Int).Set(balance)
}

// WholeTokenRate returns 10^decimals, the 1:1 unwrap rate for products
// whose protocol token tracks its underlying one to one.
func WholeTokenRate(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
