package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lending-adapters/internal/domain"
	"lending-adapters/internal/storage"
)

func testMovement(product string, block uint64, logIndex uint) *domain.Movement {
	return &domain.Movement{
		ProtocolToken:   domain.Token{Address: common.HexToAddress("0xC0")},
		UnderlyingToken: domain.Token{Address: common.HexToAddress("0xD0")},
		Kind:            domain.MovementSupply,
		BlockNumber:     block,
		TxHash:          common.HexToHash("0xabc"),
		LogIndex:        logIndex,
		Amount:          big.NewInt(100),
		Product:         product,
		User:            common.HexToAddress("0xF0"),
	}
}

func TestMovementStore_InsertAndGetByUser(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	m := testMovement("compound-optimizer", 100, 1)
	if err := store.Insert(ctx, m); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.GetByUser(ctx, "compound-optimizer", m.User)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 movement, got %d", len(result))
	}
	if result[0].Amount.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("Expected amount 100, got %s", result[0].Amount)
	}
}

func TestMovementStore_DuplicateKey(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	m := testMovement("compound-optimizer", 100, 1)
	if err := store.Insert(ctx, m); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, m)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestMovementStore_SameLogDifferentProduct(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testMovement("compound-optimizer", 100, 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, testMovement("aave-optimizer", 100, 1)); err != nil {
		t.Errorf("Same log under another product should insert, got %v", err)
	}
}

func TestMovementStore_IntraBatchDuplicate(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	movements := []*domain.Movement{
		testMovement("compound-optimizer", 100, 1),
		testMovement("compound-optimizer", 100, 1), // duplicate key
	}

	err := store.InsertBulk(ctx, movements)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	result, _ := store.GetByUser(ctx, "compound-optimizer", movements[0].User)
	if len(result) != 0 {
		t.Errorf("Expected 0 movements (rollback), got %d", len(result))
	}
}

func TestMovementStore_GetByPoolRange(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	m1 := testMovement("compound-optimizer", 100, 1)
	m2 := testMovement("compound-optimizer", 200, 2)
	m3 := testMovement("compound-optimizer", 300, 3)
	if err := store.InsertBulk(ctx, []*domain.Movement{m1, m2, m3}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByPool(ctx, "compound-optimizer", m1.ProtocolToken.Address, 150, 250)
	if err != nil {
		t.Fatalf("GetByPool failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 movement in range, got %d", len(result))
	}
	if result[0].BlockNumber != 200 {
		t.Errorf("Expected block 200, got %d", result[0].BlockNumber)
	}
}

func TestMovementStore_OrderByBlockThenLogIndex(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	movements := []*domain.Movement{
		testMovement("compound-optimizer", 200, 5),
		testMovement("compound-optimizer", 100, 9),
		testMovement("compound-optimizer", 100, 2),
	}
	if err := store.InsertBulk(ctx, movements); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, _ := store.GetByUser(ctx, "compound-optimizer", movements[0].User)
	for i := 1; i < len(result); i++ {
		prev, cur := result[i-1], result[i]
		if cur.BlockNumber < prev.BlockNumber ||
			(cur.BlockNumber == prev.BlockNumber && cur.LogIndex < prev.LogIndex) {
			t.Errorf("Results not ordered at index %d", i)
		}
	}
}

func TestMovementStore_InvalidInput(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	err := store.Insert(ctx, nil)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil movement, got %v", err)
	}

	noAmount := testMovement("compound-optimizer", 100, 1)
	noAmount.Amount = nil
	err = store.Insert(ctx, noAmount)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil amount, got %v", err)
	}
}

func TestMovementStore_ReturnsCopies(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	m := testMovement("compound-optimizer", 100, 1)
	if err := store.Insert(ctx, m); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, _ := store.GetByUser(ctx, "compound-optimizer", m.User)
	result[0].BlockNumber = 999

	again, _ := store.GetByUser(ctx, "compound-optimizer", m.User)
	if again[0].BlockNumber != 100 {
		t.Errorf("Store mutated through returned copy: block %d", again[0].BlockNumber)
	}
}
