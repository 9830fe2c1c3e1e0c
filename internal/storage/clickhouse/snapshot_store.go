package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-ico/internal/domain"
	"solana-ico/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `sale_address, admin, total_tokens, tokens_sold, slot, signature, timestamp_ms`

// Insert adds a snapshot. Returns ErrDuplicateKey if (sale_address, timestamp_ms) exists.
// MergeTree does not enforce uniqueness, so the key is checked first.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.SaleSnapshot) (err error) {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}
	defer func(start time.Time) { observe("insert_snapshot", start, err) }(time.Now())

	exists, err := s.exists(ctx, snap.SaleAddress, snap.TimestampMs)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO sale_snapshots (`+snapshotColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		snap.SaleAddress, snap.Admin,
		snap.TotalTokens, snap.TokensSold,
		uint64(snap.Slot), snap.Signature, uint64(snap.TimestampMs),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatest retrieves the newest snapshot of a sale. Returns ErrNotFound if none.
func (s *SnapshotStore) GetLatest(ctx context.Context, saleAddress string) (*domain.SaleSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM sale_snapshots
		WHERE sale_address = ?
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, saleAddress)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	defer rows.Close()

	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[0], nil
}

// GetByTimeRange retrieves snapshots of a sale within [start, end] (inclusive).
func (s *SnapshotStore) GetByTimeRange(ctx context.Context, saleAddress string, start, end int64) ([]*domain.SaleSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM sale_snapshots
		WHERE sale_address = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, saleAddress, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// exists checks if a snapshot with the given key exists.
func (s *SnapshotStore) exists(ctx context.Context, saleAddress string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM sale_snapshots
		WHERE sale_address = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, saleAddress, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanSnapshots scans multiple rows.
func scanSnapshots(rows chRows) ([]*domain.SaleSnapshot, error) {
	var snaps []*domain.SaleSnapshot

	for rows.Next() {
		var snap domain.SaleSnapshot
		var slot, timestampMs uint64

		err := rows.Scan(
			&snap.SaleAddress, &snap.Admin,
			&snap.TotalTokens, &snap.TokensSold,
			&slot, &snap.Signature, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		snap.Slot = int64(slot)
		snap.TimestampMs = int64(timestampMs)
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snaps, nil
}
