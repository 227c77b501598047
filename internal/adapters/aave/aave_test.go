package aave

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-adapters/internal/domain"
	"lending-adapters/internal/evm/evmtest"
)

var (
	aDAI  = common.HexToAddress("0x028171bCA77440897B824Ca71D1c56caC55b68A3")
	dai   = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func newProtocol() (*evmtest.Backend, *Protocol) {
	backend := evmtest.New().
		Register(OptimizerAddress, optimizerABI).
		Register(LensAddress, lensABI).
		Register(aDAI, aTokenABI)
	return backend, New(backend)
}

func TestProtocol_Markets(t *testing.T) {
	backend, p := newProtocol()
	backend.Returns(OptimizerAddress, "getMarketsCreated", []common.Address{aDAI})

	markets, err := p.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{aDAI}, markets)
}

func TestProtocol_Underlying(t *testing.T) {
	backend, p := newProtocol()
	backend.Returns(aDAI, "UNDERLYING_ASSET_ADDRESS", dai)

	addr, err := p.Underlying(context.Background(), aDAI)
	require.NoError(t, err)
	assert.Equal(t, dai, addr)
}

func TestProtocol_UnderlyingCallFailureIsZeroSentinel(t *testing.T) {
	backend, p := newProtocol()
	backend.Fails(aDAI, "UNDERLYING_ASSET_ADDRESS", errors.New("execution reverted"))

	addr, err := p.Underlying(context.Background(), aDAI)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, addr)
}

func TestProtocol_BalanceReadsTotalDespiteLensOrder(t *testing.T) {
	backend, p := newProtocol()
	// This lens leads with balanceInP2P; totalBalance stays last.
	backend.Returns(LensAddress, "getCurrentSupplyBalanceInOf",
		big.NewInt(300), big.NewInt(700), big.NewInt(1000))

	balance, err := p.Balance(context.Background(), domain.SideSupply, aDAI, alice, nil)
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(1000).Cmp(balance))
}

func TestProtocol_TotalsNoUnitConversion(t *testing.T) {
	backend, p := newProtocol()
	backend.Returns(LensAddress, "getTotalMarketSupply", big.NewInt(300), big.NewInt(700))

	poolSide, peerToPeer, err := p.Totals(context.Background(), aDAI, nil)
	require.NoError(t, err)
	// aTokens rebase 1:1; the lens amounts pass through untouched
	assert.Zero(t, big.NewInt(700).Cmp(poolSide))
	assert.Zero(t, big.NewInt(300).Cmp(peerToPeer))
}

func TestProtocol_MovementFilterTopicLayouts(t *testing.T) {
	_, p := newProtocol()
	userTopic := common.BytesToHash(alice.Bytes())
	marketTopic := common.BytesToHash(aDAI.Bytes())

	cases := []struct {
		kind        domain.MovementKind
		event       string
		userIndex   int
		marketIndex int
	}{
		{domain.MovementSupply, "Supplied", 2, 3},
		{domain.MovementWithdraw, "Withdrawn", 1, 3},
		{domain.MovementBorrow, "Borrowed", 1, 2},
		{domain.MovementRepay, "Repaid", 2, 3},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			q, err := p.MovementFilter(tc.kind, aDAI, alice, 100, 200)
			require.NoError(t, err)

			assert.Equal(t, []common.Address{OptimizerAddress}, q.Addresses)
			require.Len(t, q.Topics, tc.marketIndex+1)
			assert.Equal(t, p.optimizer.ABI().Events[tc.event].ID, q.Topics[0][0])
			assert.Equal(t, []common.Hash{userTopic}, q.Topics[tc.userIndex])
			assert.Equal(t, []common.Hash{marketTopic}, q.Topics[tc.marketIndex])
		})
	}
}

func TestProtocol_ParseMovementBorrow(t *testing.T) {
	_, p := newProtocol()

	event := p.optimizer.ABI().Events["Borrowed"]
	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(987),   // _amount
		big.NewInt(900),   // _balanceOnPool
		big.NewInt(87),    // _balanceInP2P
	)
	require.NoError(t, err)

	lg := types.Log{
		Address: OptimizerAddress,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(alice.Bytes()), // _borrower
			common.BytesToHash(aDAI.Bytes()),  // _poolToken
		},
		Data: data,
	}

	parsed, err := p.ParseMovement(domain.MovementBorrow, lg)
	require.NoError(t, err)
	assert.Equal(t, alice, parsed.User)
	assert.Equal(t, aDAI, parsed.Market)
	assert.Zero(t, big.NewInt(987).Cmp(parsed.Amount))
}

func TestProtocol_ParseMovementUnsupportedKind(t *testing.T) {
	_, p := newProtocol()

	_, err := p.ParseMovement(domain.MovementDeposit, types.Log{})
	assert.Error(t, err)
}
