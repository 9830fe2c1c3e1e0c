package memory

import (
	"context"
	"sort"
	"sync"

	"solana-ico/internal/domain"
	"solana-ico/internal/storage"
)

// ActionStore is an in-memory implementation of storage.ActionStore.
type ActionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Action // keyed by action_id
}

// NewActionStore creates a new in-memory action store.
func NewActionStore() *ActionStore {
	return &ActionStore{
		data: make(map[string]*domain.Action),
	}
}

// Insert adds a new action. Returns ErrDuplicateKey if action_id exists.
func (s *ActionStore) Insert(_ context.Context, a *domain.Action) error {
	if err := storage.ValidateAction(a); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ActionID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	actionCopy := *a
	s.data[a.ActionID] = &actionCopy
	return nil
}

// GetByID retrieves an action by its ID. Returns ErrNotFound if not exists.
func (s *ActionStore) GetByID(_ context.Context, actionID string) (*domain.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[actionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	actionCopy := *a
	return &actionCopy, nil
}

// ListByWallet retrieves actions signed by wallet, ordered by created_at ASC.
func (s *ActionStore) ListByWallet(_ context.Context, wallet string, limit int) ([]*domain.Action, error) {
	result := s.filter(func(a *domain.Action) bool { return a.Wallet == wallet })
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// ListByTimeRange retrieves actions created within [start, end] (inclusive).
func (s *ActionStore) ListByTimeRange(_ context.Context, start, end int64) ([]*domain.Action, error) {
	return s.filter(func(a *domain.Action) bool {
		return a.CreatedAt >= start && a.CreatedAt <= end
	}), nil
}

func (s *ActionStore) filter(keep func(*domain.Action) bool) []*domain.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Action
	for _, a := range s.data {
		if keep(a) {
			actionCopy := *a
			result = append(result, &actionCopy)
		}
	}

	// Sort by created_at ASC, action_id ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ActionID < result[j].ActionID
	})
	return result
}

// Verify interface compliance at compile time.
var _ storage.ActionStore = (*ActionStore)(nil)
