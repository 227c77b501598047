package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lending-adapters/internal/domain"
)

// ERC20ABI covers the read-only metadata and balance surface.
const ERC20ABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// NativeToken stands in for markets whose underlying is the chain's
// native asset. Registries report those with the zero address.
var NativeToken = domain.Token{
	Address:  common.Address{},
	Name:     "Ether",
	Symbol:   "ETH",
	Decimals: 18,
}

// FetchToken reads name, symbol and decimals from an ERC-20 contract.
// The zero address resolves to NativeToken without any RPC call.
func FetchToken(ctx context.Context, backend Backend, addr common.Address) (domain.Token, error) {
	if addr == (common.Address{}) {
		return NativeToken, nil
	}

	c, err := NewContract(addr, ERC20ABI, backend)
	if err != nil {
		return domain.Token{}, err
	}

	results, err := c.Call(ctx, nil, "name")
	if err != nil {
		return domain.Token{}, fmt.Errorf("erc20 name: %w", err)
	}
	name, ok := results[0].(string)
	if !ok {
		return domain.Token{}, fmt.Errorf("erc20 name on %s: not a string", addr.Hex())
	}

	results, err = c.Call(ctx, nil, "symbol")
	if err != nil {
		return domain.Token{}, fmt.Errorf("erc20 symbol: %w", err)
	}
	symbol, ok := results[0].(string)
	if !ok {
		return domain.Token{}, fmt.Errorf("erc20 symbol on %s: not a string", addr.Hex())
	}

	results, err = c.Call(ctx, nil, "decimals")
	if err != nil {
		return domain.Token{}, fmt.Errorf("erc20 decimals: %w", err)
	}
	decimals, ok := results[0].(uint8)
	if !ok {
		return domain.Token{}, fmt.Errorf("erc20 decimals on %s: not a uint8", addr.Hex())
	}

	return domain.Token{
		Address:  addr,
		Name:     name,
		Symbol:   symbol,
		Decimals: decimals,
	}, nil
}

// BalanceOf reads an ERC-20 balance at blockNumber (nil for latest).
func BalanceOf(ctx context.Context, backend Backend, token, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	c, err := NewContract(token, ERC20ABI, backend)
	if err != nil {
		return nil, err
	}
	return c.CallBigInt(ctx, blockNumber, "balanceOf", account)
}
