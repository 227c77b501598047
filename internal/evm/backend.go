// Package evm wraps the go-ethereum client with the small read-only
// surface the adapters need: contract calls at a block and log filters.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"lending-adapters/internal/observability"
)

// Backend is the read-only subset of an Ethereum JSON-RPC provider used
// by the adapters. *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to a JSON-RPC endpoint. Failures propagate; there is no
// retry layer.
func Dial(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return client, nil
}

// InstrumentedBackend records Prometheus latency metrics per RPC method.
type InstrumentedBackend struct {
	inner Backend
}

// NewInstrumentedBackend wraps a backend with metrics recording.
func NewInstrumentedBackend(inner Backend) *InstrumentedBackend {
	return &InstrumentedBackend{inner: inner}
}

func (b *InstrumentedBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	start := time.Now()
	out, err := b.inner.CallContract(ctx, msg, blockNumber)
	observability.RecordRPCLatency("eth_call", time.Since(start).Seconds())
	return out, err
}

func (b *InstrumentedBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	start := time.Now()
	logs, err := b.inner.FilterLogs(ctx, q)
	observability.RecordRPCLatency("eth_getLogs", time.Since(start).Seconds())
	return logs, err
}

var _ Backend = (*InstrumentedBackend)(nil)
