// Package metadata builds and caches the per-product mapping from
// protocol-token address to protocol and underlying token metadata.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"lending-adapters/internal/domain"
	"lending-adapters/internal/evm"
)

// ErrPoolNotFound is returned when a protocol-token address is absent
// from the metadata map. Unknown addresses are a hard error, never an
// empty result.
var ErrPoolNotFound = errors.New("pool not found")

// Source enumerates a product's markets and resolves their underlying
// assets. Implementations must map "no underlying" contract-call
// failures to the zero address.
type Source interface {
	Markets(ctx context.Context) ([]common.Address, error)
	Underlying(ctx context.Context, market common.Address) (common.Address, error)
}

// Map holds one product's metadata, keyed by protocol-token address.
// Built once per adapter instance and treated as immutable afterwards.
type Map map[common.Address]domain.PoolMetadata

// Get resolves a protocol-token address. Returns ErrPoolNotFound for
// unknown addresses.
func (m Map) Get(protocolToken common.Address) (domain.PoolMetadata, error) {
	meta, ok := m[protocolToken]
	if !ok {
		return domain.PoolMetadata{}, fmt.Errorf("%w: %s", ErrPoolNotFound, protocolToken.Hex())
	}
	return meta, nil
}

// Tokens returns all protocol tokens, ordered by address for stable output.
func (m Map) Tokens() []domain.Token {
	tokens := make([]domain.Token, 0, len(m))
	for _, meta := range m {
		tokens = append(tokens, meta.ProtocolToken)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Address.Cmp(tokens[j].Address) < 0
	})
	return tokens
}

// Build enumerates markets from src and fetches ERC-20 metadata for the
// protocol token and its underlying. Per-market work runs concurrently;
// the first failure aborts the whole build.
func Build(ctx context.Context, backend evm.Backend, src Source) (Map, error) {
	markets, err := src.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate markets: %w", err)
	}

	var mu sync.Mutex
	result := make(Map, len(markets))

	g, gctx := errgroup.WithContext(ctx)
	for _, market := range markets {
		g.Go(func() error {
			protocolToken, err := evm.FetchToken(gctx, backend, market)
			if err != nil {
				return fmt.Errorf("protocol token %s: %w", market.Hex(), err)
			}

			underlyingAddr, err := src.Underlying(gctx, market)
			if err != nil {
				return fmt.Errorf("underlying of %s: %w", market.Hex(), err)
			}

			underlying, err := evm.FetchToken(gctx, backend, underlyingAddr)
			if err != nil {
				return fmt.Errorf("underlying token %s: %w", underlyingAddr.Hex(), err)
			}

			mu.Lock()
			result[market] = domain.PoolMetadata{
				ProtocolToken:   protocolToken,
				UnderlyingToken: underlying,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}
