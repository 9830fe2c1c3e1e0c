package migrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-ico/internal/storage/postgres"
)

// postgresLockKey serializes concurrent migration runs across relays.
const postgresLockKey int64 = 0x1c0_5a1e

// RunPostgresMigrations applies each embedded Postgres file at most once,
// one transaction per file, recording it in schema_migrations.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is required")
	}

	files, err := readMigrations(schemaFS, "postgres")
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, f := range files {
		if err := applyPostgres(ctx, pool, f); err != nil {
			return err
		}
	}
	return nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, f migrationFile) error {
	up := upSection(f.sql)
	if strings.TrimSpace(up) == "" {
		return nil
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", postgresLockKey); err != nil {
			return fmt.Errorf("lock migrations: %w", err)
		}

		var applied bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)", f.name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f.name, err)
		}
		if applied {
			return nil
		}

		if _, err := tx.Exec(ctx, up); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (name, applied_at) VALUES ($1, $2)",
			f.name, time.Now().UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("record migration %s: %w", f.name, err)
		}
		return nil
	})
}
