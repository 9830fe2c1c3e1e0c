package storage

import (
	"context"

	"solana-ico/internal/domain"
)

// ActionStore provides access to actions storage.
type ActionStore interface {
	// Insert adds a new action. Returns ErrDuplicateKey if action_id exists.
	Insert(ctx context.Context, a *domain.Action) error

	// GetByID retrieves an action by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, actionID string) (*domain.Action, error)

	// ListByWallet retrieves actions signed by wallet, ordered by created_at ASC.
	// A limit <= 0 returns all; otherwise the most recent limit actions are returned.
	ListByWallet(ctx context.Context, wallet string, limit int) ([]*domain.Action, error)

	// ListByTimeRange retrieves actions created within [start, end] (inclusive).
	ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.Action, error)
}

// SnapshotStore provides access to sale_snapshots storage.
type SnapshotStore interface {
	// Insert adds a snapshot. Returns ErrDuplicateKey if (sale_address, timestamp_ms) exists.
	Insert(ctx context.Context, s *domain.SaleSnapshot) error

	// GetLatest retrieves the newest snapshot of a sale. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, saleAddress string) (*domain.SaleSnapshot, error)

	// GetByTimeRange retrieves snapshots of a sale within [start, end] (inclusive),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, saleAddress string, start, end int64) ([]*domain.SaleSnapshot, error)
}
