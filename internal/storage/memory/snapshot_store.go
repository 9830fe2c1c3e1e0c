package memory

import (
	"context"
	"sort"
	"sync"

	"solana-ico/internal/domain"
	"solana-ico/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.SaleSnapshot // keyed by sale_address, sorted by timestamp
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string][]*domain.SaleSnapshot),
	}
}

// Insert adds a snapshot. Returns ErrDuplicateKey if (sale_address, timestamp_ms) exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.SaleSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[snap.SaleAddress]
	idx := sort.Search(len(existing), func(i int) bool {
		return existing[i].TimestampMs >= snap.TimestampMs
	})
	if idx < len(existing) && existing[idx].TimestampMs == snap.TimestampMs {
		return storage.ErrDuplicateKey
	}

	snapCopy := *snap
	existing = append(existing, nil)
	copy(existing[idx+1:], existing[idx:])
	existing[idx] = &snapCopy
	s.data[snap.SaleAddress] = existing
	return nil
}

// GetLatest retrieves the newest snapshot of a sale. Returns ErrNotFound if none.
func (s *SnapshotStore) GetLatest(_ context.Context, saleAddress string) (*domain.SaleSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := s.data[saleAddress]
	if len(existing) == 0 {
		return nil, storage.ErrNotFound
	}
	snapCopy := *existing[len(existing)-1]
	return &snapCopy, nil
}

// GetByTimeRange retrieves snapshots of a sale within [start, end] (inclusive).
func (s *SnapshotStore) GetByTimeRange(_ context.Context, saleAddress string, start, end int64) ([]*domain.SaleSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SaleSnapshot
	for _, snap := range s.data[saleAddress] {
		if snap.TimestampMs >= start && snap.TimestampMs <= end {
			snapCopy := *snap
			result = append(result, &snapCopy)
		}
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)
