// Package aave implements the pool.Protocol strategy for the
// peer-to-pool optimizer over Aave V2 on Ethereum mainnet.
//
// The product shares the optimizer event shapes with the Compound
// variant but differs in market enumeration (getMarketsCreated), the
// lens output order (peer-to-peer balance first) and TVL units
// (aTokens track their underlying 1:1, so no exchange-rate adjustment).
package aave

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"lending-adapters/internal/adapters/pool"
	"lending-adapters/internal/domain"
	"lending-adapters/internal/evm"
)

// Mainnet deployment addresses.
var (
	OptimizerAddress = common.HexToAddress("0x777777c9898D384F785Ee44Acfe945efDFf5f3E0")
	LensAddress      = common.HexToAddress("0x507fA343d0A90786d86C7cd885f5C49263A91FF4")
)

const optimizerABI = `[
	{"inputs":[],"name":"getMarketsCreated","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"_from","type":"address"},{"indexed":true,"name":"_onBehalf","type":"address"},{"indexed":true,"name":"_poolToken","type":"address"},{"indexed":false,"name":"_amount","type":"uint256"},{"indexed":false,"name":"_balanceOnPool","type":"uint256"},{"indexed":false,"name":"_balanceInP2P","type":"uint256"}],"name":"Supplied","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"_supplier","type":"address"},{"indexed":true,"name":"_receiver","type":"address"},{"indexed":true,"name":"_poolToken","type":"address"},{"indexed":false,"name":"_amount","type":"uint256"},{"indexed":false,"name":"_balanceOnPool","type":"uint256"},{"indexed":false,"name":"_balanceInP2P","type":"uint256"}],"name":"Withdrawn","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"_borrower","type":"address"},{"indexed":true,"name":"_poolToken","type":"address"},{"indexed":false,"name":"_amount","type":"uint256"},{"indexed":false,"name":"_balanceOnPool","type":"uint256"},{"indexed":false,"name":"_balanceInP2P","type":"uint256"}],"name":"Borrowed","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"_repayer","type":"address"},{"indexed":true,"name":"_onBehalf","type":"address"},{"indexed":true,"name":"_poolToken","type":"address"},{"indexed":false,"name":"_amount","type":"uint256"},{"indexed":false,"name":"_balanceOnPool","type":"uint256"},{"indexed":false,"name":"_balanceInP2P","type":"uint256"}],"name":"Repaid","type":"event"}
]`

const lensABI = `[
	{"inputs":[{"name":"_poolToken","type":"address"},{"name":"_user","type":"address"}],"name":"getCurrentSupplyBalanceInOf","outputs":[{"name":"balanceInP2P","type":"uint256"},{"name":"balanceOnPool","type":"uint256"},{"name":"totalBalance","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_poolToken","type":"address"},{"name":"_user","type":"address"}],"name":"getCurrentBorrowBalanceInOf","outputs":[{"name":"balanceInP2P","type":"uint256"},{"name":"balanceOnPool","type":"uint256"},{"name":"totalBalance","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_poolToken","type":"address"}],"name":"getTotalMarketSupply","outputs":[{"name":"p2pSupplyAmount","type":"uint256"},{"name":"poolSupplyAmount","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const aTokenABI = `[
	{"inputs":[],"name":"UNDERLYING_ASSET_ADDRESS","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

// Protocol is the Aave-optimizer strategy.
type Protocol struct {
	backend   evm.Backend
	optimizer *evm.Contract
	lens      *evm.Contract
}

// New creates the strategy against the mainnet deployment.
func New(backend evm.Backend) *Protocol {
	return NewAt(backend, OptimizerAddress, LensAddress)
}

// NewAt creates the strategy against explicit contract addresses.
func NewAt(backend evm.Backend, optimizer, lens common.Address) *Protocol {
	return &Protocol{
		backend:   backend,
		optimizer: evm.MustContract(optimizer, optimizerABI, backend),
		lens:      evm.MustContract(lens, lensABI, backend),
	}
}

func (p *Protocol) Product() domain.Product {
	return domain.Product{ID: "aave-optimizer", Name: "Peer-to-pool Optimizer (Aave)", ChainID: 1}
}

// Markets enumerates all aToken markets created on the optimizer.
func (p *Protocol) Markets(ctx context.Context) ([]common.Address, error) {
	results, err := p.optimizer.Call(ctx, nil, "getMarketsCreated")
	if err != nil {
		return nil, err
	}
	markets, ok := results[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getMarketsCreated: output is not an address slice")
	}
	return markets, nil
}

// Underlying resolves an aToken's underlying asset. A call failure is
// the zero-address sentinel.
func (p *Protocol) Underlying(ctx context.Context, market common.Address) (common.Address, error) {
	aToken := evm.MustContract(market, aTokenABI, p.backend)
	addr, err := aToken.CallAddress(ctx, nil, "UNDERLYING_ASSET_ADDRESS")
	if err != nil {
		return common.Address{}, nil
	}
	return addr, nil
}

// Balance reads the user's total balance (pool + matched) for one side,
// in underlying units. Unlike the Compound lens, outputs lead with the
// peer-to-peer balance; totalBalance stays last.
func (p *Protocol) Balance(ctx context.Context, side domain.PositionSide, market, user common.Address, blockNumber *big.Int) (*big.Int, error) {
	method := "getCurrentSupplyBalanceInOf"
	if side == domain.SideBorrow {
		method = "getCurrentBorrowBalanceInOf"
	}

	results, err := p.lens.Call(ctx, blockNumber, method, market, user)
	if err != nil {
		return nil, err
	}
	total, ok := results[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: totalBalance is not a uint256", method)
	}
	return total, nil
}

// UnderlyingAmount is 1:1 — lens balances are already underlying units.
func (p *Protocol) UnderlyingAmount(_ context.Context, _ domain.PoolMetadata, balance *big.Int, _ *big.Int) (*big.Int, error) {
	return pool.OneToOneUnderlying(balance), nil
}

// UnwrapRate is 1:1 against the underlying.
func (p *Protocol) UnwrapRate(_ context.Context, meta domain.PoolMetadata, _ *big.Int) (*big.Int, error) {
	return pool.WholeTokenRate(meta.UnderlyingToken.Decimals), nil
}

// Totals reports market supply split into pool and peer-to-peer sides.
// aTokens rebase 1:1 against their underlying, so no unit conversion
// applies.
func (p *Protocol) Totals(ctx context.Context, market common.Address, blockNumber *big.Int) (*big.Int, *big.Int, error) {
	results, err := p.lens.Call(ctx, blockNumber, "getTotalMarketSupply", market)
	if err != nil {
		return nil, nil, err
	}
	p2pAmount, ok := results[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("getTotalMarketSupply: p2pSupplyAmount is not a uint256")
	}
	poolAmount, ok := results[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("getTotalMarketSupply: poolSupplyAmount is not a uint256")
	}
	return poolAmount, p2pAmount, nil
}

// MovementFilter builds the log filter for one event kind.
//
// Topic layout on this product (indexed args):
//
//	Supplied:  [_from, _onBehalf, _poolToken]  → user is topic 2
//	Withdrawn: [_supplier, _receiver, _poolToken] → user is topic 1
//	Borrowed:  [_borrower, _poolToken]         → user is topic 1, market topic 2
//	Repaid:    [_repayer, _onBehalf, _poolToken] → user is topic 2
func (p *Protocol) MovementFilter(kind domain.MovementKind, market, user common.Address, fromBlock, toBlock uint64) (ethereum.FilterQuery, error) {
	userTopic := common.BytesToHash(user.Bytes())
	marketTopic := common.BytesToHash(market.Bytes())

	var topics [][]common.Hash
	switch kind {
	case domain.MovementSupply:
		id, _ := p.optimizer.EventID("Supplied")
		topics = [][]common.Hash{{id}, nil, {userTopic}, {marketTopic}}
	case domain.MovementWithdraw:
		id, _ := p.optimizer.EventID("Withdrawn")
		topics = [][]common.Hash{{id}, {userTopic}, nil, {marketTopic}}
	case domain.MovementBorrow:
		id, _ := p.optimizer.EventID("Borrowed")
		topics = [][]common.Hash{{id}, {userTopic}, {marketTopic}}
	case domain.MovementRepay:
		id, _ := p.optimizer.EventID("Repaid")
		topics = [][]common.Hash{{id}, nil, {userTopic}, {marketTopic}}
	default:
		return ethereum.FilterQuery{}, fmt.Errorf("%w: %s", pool.ErrUnsupportedMovement, kind)
	}

	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{p.optimizer.Address()},
		Topics:    topics,
	}, nil
}

// ParseMovement decodes one optimizer log into user, market and
// underlying amount.
func (p *Protocol) ParseMovement(kind domain.MovementKind, lg types.Log) (pool.ParsedMovement, error) {
	var eventName string
	var userTopic, marketTopic int
	switch kind {
	case domain.MovementSupply:
		eventName, userTopic, marketTopic = "Supplied", 2, 3
	case domain.MovementWithdraw:
		eventName, userTopic, marketTopic = "Withdrawn", 1, 3
	case domain.MovementBorrow:
		eventName, userTopic, marketTopic = "Borrowed", 1, 2
	case domain.MovementRepay:
		eventName, userTopic, marketTopic = "Repaid", 2, 3
	default:
		return pool.ParsedMovement{}, fmt.Errorf("%w: %s", pool.ErrUnsupportedMovement, kind)
	}

	event, ok := p.optimizer.ABI().Events[eventName]
	if !ok {
		return pool.ParsedMovement{}, fmt.Errorf("event %s not in abi", eventName)
	}
	if len(lg.Topics) <= marketTopic {
		return pool.ParsedMovement{}, fmt.Errorf("log has %d topics, want %d", len(lg.Topics), marketTopic+1)
	}

	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return pool.ParsedMovement{}, fmt.Errorf("unpack %s data: %w", eventName, err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return pool.ParsedMovement{}, fmt.Errorf("%s: _amount is not a uint256", eventName)
	}

	return pool.ParsedMovement{
		User:   common.BytesToAddress(lg.Topics[userTopic].Bytes()),
		Market: common.BytesToAddress(lg.Topics[marketTopic].Bytes()),
		Amount: amount,
	}, nil
}

var _ pool.Protocol = (*Protocol)(nil)
