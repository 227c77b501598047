// Package vault implements the pool.Protocol strategy for the ERC-4626
// supply-vault product. Vaults are not enumerated on-chain; the product
// ships a fixed list of deployed vault addresses.
package vault

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

// MainnetVaults is the deployed supply-vault list on Ethereum mainnet.
var MainnetVaults = []common.Address{
	common.HexToAddress("0xA5269A8e31B93Ff27B887B56720A25F844db0529"), // maUSDC
	common.HexToAddress("0x36F8d0D0573ae92326827C4a82Fe4CE4C244cAb6"), // maDAI
	common.HexToAddress("0xAFe7131a57E44f832cb2dE78ade38CaD644aaC2f"), // maUSDT
}

const vaultABI = `[
	{"inputs":[],"name":"asset","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalAssets","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"shares","type":"uint256"}],"name":"convertToAssets","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"sender","type":"address"},{"indexed":true,"name":"owner","type":"address"},{"indexed":false,"name":"assets","type":"uint256"},{"indexed":false,"name":"shares","type":"uint256"}],"name":"Deposit","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"sender","type":"address"},{"indexed":true,"name":"receiver","type":"address"},{"indexed":true,"name":"owner","type":"address"},{"indexed":false,"name":"assets","type":"uint256"},{"indexed":false,"name":"shares","type":"uint256"}],"name":"Withdraw","type":"event"}
]`

// Protocol is the vault strategy.
type Protocol struct {
	backend evm.Backend
	vaults  []common.Address
	// one parsed ABI shared across vault addresses; bound per call
	abiHolder *evm.Contract
}

// New creates the strategy for the mainnet vault list.
func New(backend evm.Backend) *Protocol {
	return NewAt(backend, MainnetVaults)
}

// NewAt creates the strategy for an explicit vault list.
func NewAt(backend evm.Backend, vaults []common.Address) *Protocol {
	return &Protocol{
		backend:   backend,
		vaults:    vaults,
		abiHolder: evm.MustContract(common.Address{}, vaultABI, backend),
	}
}

func (p *Protocol) Product() domain.Product {
	return domain.Product{ID: "supply-vault", Name: "Supply Vaults (ERC-4626)", ChainID: 1}
}

func (p *Protocol) contract(vault common.Address) *evm.Contract {
	return evm.MustContract(vault, vaultABI, p.backend)
}

// Markets returns the fixed vault list.
func (p *Protocol) Markets(_ context.Context) ([]common.Address, error) {
	out := make([]common.Address, len(p.vaults))
	copy(out, p.vaults)
	return out, nil
}

// Underlying resolves the vault's asset. A call failure is the
// zero-address sentinel.
func (p *Protocol) Underlying(ctx context.Context, market common.Address) (common.Address, error) {
	addr, err := p.contract(market).CallAddress(ctx, nil, "asset")
	if err != nil {
		return common.Address{}, nil
	}
	return addr, nil
}

// Balance reads the user's share balance. Vaults have no borrow side;
// borrow balances are always zero and get discarded upstream.
func (p *Protocol) Balance(ctx context.Context, side domain.PositionSide, market, user common.Address, blockNumber *big.Int) (*big.Int, error) {
	if side == domain.SideBorrow {
		return big.NewInt(0), nil
	}
	return p.contract(market).CallBigInt(ctx, blockNumber, "balanceOf", user)
}

// UnderlyingAmount converts shares into assets using the share price
// for one whole share, a decimals-adjusted division:
// assets = shares * convertToAssets(10^decimals) / 10^decimals.
func (p *Protocol) UnderlyingAmount(ctx context.Context, meta domain.PoolMetadata, balance *big.Int, blockNumber *big.Int) (*big.Int, error) {
	rate, err := p.UnwrapRate(ctx, meta, blockNumber)
	if err != nil {
		return nil, err
	}
	one := pool.WholeTokenRate(meta.ProtocolToken.Decimals)
	out := new(big.Int).Mul(balance, rate)
	return out.Div(out, one), nil
}

// UnwrapRate returns convertToAssets for one whole share.
func (p *Protocol) UnwrapRate(ctx context.Context, meta domain.PoolMetadata, blockNumber *big.Int) (*big.Int, error) {
	one := pool.WholeTokenRate(meta.ProtocolToken.Decimals)
	rate, err := p.contract(meta.ProtocolToken.Address).CallBigInt(ctx, blockNumber, "convertToAssets", one)
	if err != nil {
		return nil, fmt.Errorf("convertToAssets on %s: %w", meta.ProtocolToken.Address.Hex(), err)
	}
	return rate, nil
}

// Totals reports the vault's assets under management. There is no
// peer-to-peer side on this product.
func (p *Protocol) Totals(ctx context.Context, market common.Address, blockNumber *big.Int) (*big.Int, *big.Int, error) {
	total, err := p.contract(market).CallBigInt(ctx, blockNumber, "totalAssets")
	if err != nil {
		return nil, nil, err
	}
	return total, big.NewInt(0), nil
}

// MovementFilter builds the log filter for one event kind. Vault events
// live on the vault contract itself; the market is the log address.
//
// Topic layout (indexed args):
//
//	Deposit:  [sender, owner]           → user is topic 2
//	Withdraw: [sender, receiver, owner] → user is topic 3
func (p *Protocol) MovementFilter(kind domain.MovementKind, market, user common.Address, fromBlock, toBlock uint64) (ethereum.FilterQuery, error) {
	userTopic := common.BytesToHash(user.Bytes())

	var topics [][]common.Hash
	switch kind {
	case domain.MovementDeposit:
		id, _ := p.abiHolder.EventID("Deposit")
		topics = [][]common.Hash{{id}, nil, {userTopic}}
	case domain.MovementWithdraw:
		id, _ := p.abiHolder.EventID("Withdraw")
		topics = [][]common.Hash{{id}, nil, nil, {userTopic}}
	default:
		return ethereum.FilterQuery{}, fmt.Errorf("%w: %s", pool.ErrUnsupportedMovement, kind)
	}

	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{market},
		Topics:    topics,
	}, nil
}

// ParseMovement decodes one vault log into owner, vault and asset amount.
func (p *Protocol) ParseMovement(kind domain.MovementKind, lg types.Log) (pool.ParsedMovement, error) {
	var eventName string
	var userTopic int
	switch kind {
	case domain.MovementDeposit:
		eventName, userTopic = "Deposit", 2
	case domain.MovementWithdraw:
		eventName, userTopic = "Withdraw", 3
	default:
		return pool.ParsedMovement{}, fmt.Errorf("%w: %s", pool.ErrUnsupportedMovement, kind)
	}

	event, ok := p.abiHolder.ABI().Events[eventName]
	if !ok {
		return pool.ParsedMovement{}, fmt.Errorf("event %s not in abi", eventName)
	}
	if len(lg.Topics) <= userTopic {
		return pool.ParsedMovement{}, fmt.Errorf("log has %d topics, want %d", len(lg.Topics), userTopic+1)
	}

	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return pool.ParsedMovement{}, fmt.Errorf("unpack %s data: %w", eventName, err)
	}
	assets, ok := values[0].(*big.Int)
	if !ok {
		return pool.ParsedMovement{}, fmt.Errorf("%s: assets is not a uint256", eventName)
	}

	return pool.ParsedMovement{
		User:   common.BytesToAddress(lg.Topics[userTopic].Bytes()),
		Market: lg.Address,
		Amount: assets,
	}, nil
}

var _ pool.Protocol = (*Protocol)(nil)
