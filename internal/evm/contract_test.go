package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-adapters/internal/evm/evmtest"
)

const counterABI = `[
	{"inputs":[],"name":"value","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"owner","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"setter","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"ValueSet","type":"event"}
]`

var (
	counterAddr = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	ownerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000AB")
)

func TestContract_CallBigInt(t *testing.T) {
	backend := evmtest.New().
		Register(counterAddr, counterABI).
		Returns(counterAddr, "value", big.NewInt(42))

	c := MustContract(counterAddr, counterABI, backend)

	v, err := c.CallBigInt(context.Background(), nil, "value")
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(42).Cmp(v))
}

func TestContract_CallAddress(t *testing.T) {
	backend := evmtest.New().
		Register(counterAddr, counterABI).
		Returns(counterAddr, "owner", ownerAddr)

	c := MustContract(counterAddr, counterABI, backend)

	addr, err := c.CallAddress(context.Background(), nil, "owner")
	require.NoError(t, err)
	assert.Equal(t, ownerAddr, addr)
}

func TestContract_CallErrorPropagates(t *testing.T) {
	rpcErr := errors.New("execution reverted")
	backend := evmtest.New().
		Register(counterAddr, counterABI).
		Fails(counterAddr, "value", rpcErr)

	c := MustContract(counterAddr, counterABI, backend)

	_, err := c.CallBigInt(context.Background(), nil, "value")
	assert.ErrorIs(t, err, rpcErr)
}

func TestContract_UnknownMethod(t *testing.T) {
	c := MustContract(counterAddr, counterABI, evmtest.New())

	_, err := c.Call(context.Background(), nil, "missing")
	assert.Error(t, err)
}

func TestContract_EventID(t *testing.T) {
	c := MustContract(counterAddr, counterABI, evmtest.New())

	id, err := c.EventID("ValueSet")
	require.NoError(t, err)
	assert.Equal(t, c.ABI().Events["ValueSet"].ID, id)

	_, err = c.EventID("Missing")
	assert.Error(t, err)
}

func TestNewContract_BadABI(t *testing.T) {
	_, err := NewContract(counterAddr, "{not json", evmtest.New())
	assert.Error(t, err)
}
