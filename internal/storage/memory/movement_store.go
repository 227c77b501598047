package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lending-adapters/internal/domain"
	"lending-adapters/internal/storage"
)

type movementKey struct {
	product  string
	txHash   common.Hash
	logIndex uint
}

// MovementStore is an in-memory implementation of storage.MovementStore.
type MovementStore struct {
	mu   sync.RWMutex
	byID map[movementKey]*domain.Movement
}

// NewMovementStore creates a new in-memory movement store.
func NewMovementStore() *MovementStore {
	return &MovementStore{
		byID: make(map[movementKey]*domain.Movement),
	}
}

// Insert adds a movement. Returns ErrDuplicateKey if the key exists.
func (s *MovementStore) Insert(_ context.Context, m *domain.Movement) error {
	if m == nil || m.Product == "" || m.Amount == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(m)
}

// InsertBulk adds multiple movements atomically. Fails entire batch on
// any duplicate, leaving the store unchanged.
func (s *MovementStore) InsertBulk(_ context.Context, movements []*domain.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range movements {
		if m == nil || m.Product == "" || m.Amount == nil {
			return storage.ErrInvalidInput
		}
		key := movementKey{m.Product, m.TxHash, m.LogIndex}
		if _, exists := s.byID[key]; exists {
			return storage.ErrDuplicateKey
		}
	}
	seen := make(map[movementKey]struct{}, len(movements))
	for _, m := range movements {
		key := movementKey{m.Product, m.TxHash, m.LogIndex}
		if _, dup := seen[key]; dup {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	for _, m := range movements {
		if err := s.insertLocked(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *MovementStore) insertLocked(m *domain.Movement) error {
	key := movementKey{m.Product, m.TxHash, m.LogIndex}
	if _, exists := s.byID[key]; exists {
		return storage.ErrDuplicateKey
	}
	mCopy := *m
	s.byID[key] = &mCopy
	return nil
}

// GetByUser retrieves a user's movements for a product, ordered by
// block number ASC, log index ASC.
func (s *MovementStore) GetByUser(_ context.Context, product string, user common.Address) ([]*domain.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Movement
	for _, m := range s.byID {
		if m.Product == product && m.User == user {
			mCopy := *m
			out = append(out, &mCopy)
		}
	}
	sortMovements(out)
	return out, nil
}

// GetByPool retrieves movements for one market within [fromBlock, toBlock].
func (s *MovementStore) GetByPool(_ context.Context, product string, protocolToken common.Address, fromBlock, toBlock uint64) ([]*domain.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Movement
	for _, m := range s.byID {
		if m.Product == product &&
			m.ProtocolToken.Address == protocolToken &&
			m.BlockNumber >= fromBlock && m.BlockNumber <= toBlock {
			mCopy := *m
			out = append(out, &mCopy)
		}
	}
	sortMovements(out)
	return out, nil
}

func sortMovements(movements []*domain.Movement) {
	sort.Slice(movements, func(i, j int) bool {
		if movements[i].BlockNumber != movements[j].BlockNumber {
			return movements[i].BlockNumber < movements[j].BlockNumber
		}
		return movements[i].LogIndex < movements[j].LogIndex
	})
}

var _ storage.MovementStore = (*MovementStore)(nil)
