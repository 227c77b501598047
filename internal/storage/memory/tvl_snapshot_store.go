package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lending-adapters/internal/domain"
	"lending-adapters/internal/storage"
)

type snapshotKey struct {
	product       string
	protocolToken common.Address
	blockNumber   uint64
}

// TVLSnapshotStore is an in-memory implementation of storage.TVLSnapshotStore.
type TVLSnapshotStore struct {
	mu   sync.RWMutex
	byID map[snapshotKey]*domain.TVLSnapshot
}

// NewTVLSnapshotStore creates a new in-memory TVL snapshot store.
func NewTVLSnapshotStore() *TVLSnapshotStore {
	return &TVLSnapshotStore{
		byID: make(map[snapshotKey]*domain.TVLSnapshot),
	}
}

// InsertBulk adds multiple snapshots. Fails entire batch on any
// duplicate, leaving the store unchanged.
func (s *TVLSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.TVLSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[snapshotKey]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.Product == "" || snap.Total == nil {
			return storage.ErrInvalidInput
		}
		key := snapshotKey{snap.Product, snap.ProtocolToken.Address, snap.BlockNumber}
		if _, exists := s.byID[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, dup := seen[key]; dup {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	for _, snap := range snapshots {
		key := snapshotKey{snap.Product, snap.ProtocolToken.Address, snap.BlockNumber}
		snapCopy := *snap
		s.byID[key] = &snapCopy
	}
	return nil
}

// GetByPool retrieves all snapshots for one market, ordered by block ASC.
func (s *TVLSnapshotStore) GetByPool(_ context.Context, product string, protocolToken common.Address) ([]*domain.TVLSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TVLSnapshot
	for _, snap := range s.byID {
		if snap.Product == product && snap.ProtocolToken.Address == protocolToken {
			snapCopy := *snap
			out = append(out, &snapCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BlockNumber < out[j].BlockNumber
	})
	return out, nil
}

var _ storage.TVLSnapshotStore = (*TVLSnapshotStore)(nil)
