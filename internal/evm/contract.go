package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract binds a parsed ABI to a deployed address for read-only calls.
type Contract struct {
	addr    common.Address
	abi     abi.ABI
	backend Backend
}

// NewContract parses abiJSON and binds it to addr.
func NewContract(addr common.Address, abiJSON string, backend Backend) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &Contract{addr: addr, abi: parsed, backend: backend}, nil
}

// MustContract is NewContract for ABI strings known at compile time.
func MustContract(addr common.Address, abiJSON string, backend Backend) *Contract {
	c, err := NewContract(addr, abiJSON, backend)
	if err != nil {
		panic(err)
	}
	return c
}

// Address returns the bound contract address.
func (c *Contract) Address() common.Address {
	return c.addr
}

// ABI returns the parsed contract ABI.
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// Call executes method via eth_call at blockNumber (nil for latest) and
// returns the unpacked outputs.
func (c *Contract) Call(ctx context.Context, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.addr, Data: input}
	output, err := c.backend.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, c.addr.Hex(), err)
	}

	results, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return results, nil
}

// CallAddress calls a method returning a single address.
func (c *Contract) CallAddress(ctx context.Context, blockNumber *big.Int, method string, args ...interface{}) (common.Address, error) {
	results, err := c.Call(ctx, blockNumber, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: output is not an address", method)
	}
	return addr, nil
}

// CallBigInt calls a method returning a single uint256.
func (c *Contract) CallBigInt(ctx context.Context, blockNumber *big.Int, method string, args ...interface{}) (*big.Int, error) {
	results, err := c.Call(ctx, blockNumber, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: output is not a uint256", method)
	}
	return v, nil
}

// EventID returns the topic0 hash for a named event.
func (c *Contract) EventID(name string) (common.Hash, error) {
	ev, ok := c.abi.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("event %s not in abi", name)
	}
	return ev.ID, nil
}
