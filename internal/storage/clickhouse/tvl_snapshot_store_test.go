package clickhouse

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-adapters/internal/domain"
	"lending-adapters/internal/storage"
)

var testMarket = common.HexToAddress("0x5d3a536E4D6DbD6114cc1Ead35777bAB948E3643")

func makeSnapshot(product string, block uint64) *domain.TVLSnapshot {
	return &domain.TVLSnapshot{
		Product: product,
		ProtocolToken: domain.Token{
			Address:  testMarket,
			Name:     "Compound Dai",
			Symbol:   "cDAI",
			Decimals: 8,
		},
		BlockNumber: block,
		PoolSide:    big.NewInt(700),
		PeerToPeer:  big.NewInt(300),
		Total:       big.NewInt(1000),
	}
}

func TestTVLSnapshotStore_InsertBulkAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTVLSnapshotStore(conn)

	// uint256-scale amounts round-trip through String columns
	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457", 10)
	snap := makeSnapshot("compound-optimizer", 17000000)
	snap.Total = huge

	err := store.InsertBulk(ctx, []*domain.TVLSnapshot{snap})
	require.NoError(t, err)

	result, err := store.GetByPool(ctx, "compound-optimizer", testMarket)
	require.NoError(t, err)

	require.Len(t, result, 1)
	got := result[0]
	assert.Equal(t, snap.Product, got.Product)
	assert.Equal(t, snap.ProtocolToken, got.ProtocolToken)
	assert.Equal(t, snap.BlockNumber, got.BlockNumber)
	assert.Zero(t, snap.PoolSide.Cmp(got.PoolSide))
	assert.Zero(t, snap.PeerToPeer.Cmp(got.PeerToPeer))
	assert.Zero(t, huge.Cmp(got.Total))
}

func TestTVLSnapshotStore_Duplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTVLSnapshotStore(conn)

	snap := makeSnapshot("compound-optimizer", 17000000)
	require.NoError(t, store.InsertBulk(ctx, []*domain.TVLSnapshot{snap}))

	err := store.InsertBulk(ctx, []*domain.TVLSnapshot{snap})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTVLSnapshotStore_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTVLSnapshotStore(conn)

	snapshots := []*domain.TVLSnapshot{
		makeSnapshot("compound-optimizer", 17000000),
		makeSnapshot("compound-optimizer", 17000000), // duplicate key
	}

	err := store.InsertBulk(ctx, snapshots)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	result, err := store.GetByPool(ctx, "compound-optimizer", testMarket)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestTVLSnapshotStore_Ordering(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTVLSnapshotStore(conn)

	// Insert out of order
	snapshots := []*domain.TVLSnapshot{
		makeSnapshot("compound-optimizer", 17000002),
		makeSnapshot("compound-optimizer", 17000000),
		makeSnapshot("compound-optimizer", 17000001),
	}
	require.NoError(t, store.InsertBulk(ctx, snapshots))

	result, err := store.GetByPool(ctx, "compound-optimizer", testMarket)
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, uint64(17000000), result[0].BlockNumber)
	assert.Equal(t, uint64(17000001), result[1].BlockNumber)
	assert.Equal(t, uint64(17000002), result[2].BlockNumber)
}

func TestTVLSnapshotStore_ProductIsolation(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTVLSnapshotStore(conn)

	snapshots := []*domain.TVLSnapshot{
		makeSnapshot("compound-optimizer", 17000000),
		makeSnapshot("aave-optimizer", 17000000),
	}
	require.NoError(t, store.InsertBulk(ctx, snapshots))

	result, err := store.GetByPool(ctx, "aave-optimizer", testMarket)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "aave-optimizer", result[0].Product)
}

func TestTVLSnapshotStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTVLSnapshotStore(conn)

	err := store.InsertBulk(ctx, []*domain.TVLSnapshot{nil})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	noTotal := makeSnapshot("compound-optimizer", 17000000)
	noTotal.Total = nil
	err = store.InsertBulk(ctx, []*domain.TVLSnapshot{noTotal})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTVLSnapshotStore_EmptyBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTVLSnapshotStore(conn)

	err := store.InsertBulk(ctx, []*domain.TVLSnapshot{})
	require.NoError(t, err)
}
