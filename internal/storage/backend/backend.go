// Package backend opens the stores selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"solana-ico/internal/config"
	"solana-ico/internal/storage"
	chstore "solana-ico/internal/storage/clickhouse"
	"solana-ico/internal/storage/memory"
	"solana-ico/internal/storage/migrations"
	pgstore "solana-ico/internal/storage/postgres"
	"solana-ico/internal/storage/sqlite"
)

// Stores holds the opened stores. Snapshots is nil when no snapshot
// backend is configured and snapshots were not requested in memory.
type Stores struct {
	Actions   storage.ActionStore
	Snapshots storage.SnapshotStore

	closers []func() error
}

// Close releases every underlying connection.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open opens the action store for cfg.Backend and, when a ClickHouse DSN is
// set, the ClickHouse snapshot store. memorySnapshots falls back to an
// in-memory snapshot store when ClickHouse is not configured.
func Open(ctx context.Context, cfg config.StorageConfig, memorySnapshots bool) (*Stores, error) {
	s := &Stores{}

	switch cfg.Backend {
	case config.BackendMemory:
		s.Actions = memory.NewActionStore()

	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		s.Actions = sqlite.NewActionStore(db)

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.Actions = pgstore.NewActionStore(pool)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	switch {
	case cfg.ClickHouseDSN != "":
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.closers = append(s.closers, conn.Close)
		s.Snapshots = chstore.NewSnapshotStore(conn)
	case memorySnapshots:
		s.Snapshots = memory.NewSnapshotStore()
	}

	return s, nil
}
