// Package evmtest provides a stub JSON-RPC backend for tests: contract
// calls answer from canned outputs keyed by address and method, log
// filters replay preset logs and record the queries they were given.
package evmtest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is a canned-response evm.Backend for tests.
type Backend struct {
	mu      sync.Mutex
	abis    map[common.Address]abi.ABI
	outputs map[string][]byte
	errs    map[string]error
	calls   map[string]int

	// Logs are returned by every FilterLogs call.
	Logs []types.Log
	// Queries records every filter passed to FilterLogs.
	Queries []ethereum.FilterQuery
}

// New creates an empty stub backend.
func New() *Backend {
	return &Backend{
		abis:    make(map[common.Address]abi.ABI),
		outputs: make(map[string][]byte),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// Register parses abiJSON and binds it to addr so calls can be decoded.
func (b *Backend) Register(addr common.Address, abiJSON string) *Backend {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("evmtest: parse abi for %s: %v", addr.Hex(), err))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.abis[addr] = parsed
	return b
}

// Returns sets the outputs for method on addr. Outputs are packed with
// the registered ABI.
func (b *Backend) Returns(addr common.Address, method string, outputs ...interface{}) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()

	contractABI, ok := b.abis[addr]
	if !ok {
		panic(fmt.Sprintf("evmtest: no abi registered for %s", addr.Hex()))
	}
	m, ok := contractABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("evmtest: method %s not in abi for %s", method, addr.Hex()))
	}
	packed, err := m.Outputs.Pack(outputs...)
	if err != nil {
		panic(fmt.Sprintf("evmtest: pack outputs for %s: %v", method, err))
	}
	b.outputs[callKey(addr, method)] = packed
	return b
}

// Fails makes method on addr return err.
func (b *Backend) Fails(addr common.Address, method string, err error) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[callKey(addr, method)] = err
	return b
}

// CallCount reports how many times method on addr was called.
func (b *Backend) CallCount(addr common.Address, method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[callKey(addr, method)]
}

// CallContract answers from canned outputs; unknown calls fail loudly.
func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, fmt.Errorf("evmtest: call with nil target")
	}
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("evmtest: call data shorter than a selector")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	contractABI, ok := b.abis[*msg.To]
	if !ok {
		return nil, fmt.Errorf("evmtest: no abi registered for %s", msg.To.Hex())
	}
	method, err := contractABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, fmt.Errorf("evmtest: %s: %w", msg.To.Hex(), err)
	}

	key := callKey(*msg.To, method.Name)
	b.calls[key]++

	if err, ok := b.errs[key]; ok {
		return nil, err
	}
	if out, ok := b.outputs[key]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("evmtest: no stub for %s on %s", method.Name, msg.To.Hex())
}

// FilterLogs records the query and returns the preset logs.
func (b *Backend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Queries = append(b.Queries, q)
	return b.Logs, nil
}

func callKey(addr common.Address, method string) string {
	return addr.Hex() + ":" + method
}
