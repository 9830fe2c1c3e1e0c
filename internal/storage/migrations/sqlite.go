package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const sqliteMigrationTable = "schema_migrations"

// RunSqliteMigrations applies each embedded SQLite file at most once,
// recording applied files in schema_migrations.
func RunSqliteMigrations(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("sql db is required")
	}

	files, err := readMigrations(schemaFS, "sqlite")
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+sqliteMigrationTable+` (
			name       TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, f := range files {
		applied, err := sqliteApplied(ctx, db, f.name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", f.name, err)
		}
		if applied {
			continue
		}

		up := upSection(f.sql)
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", f.name, err)
		}
		if _, err := tx.ExecContext(ctx, up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+sqliteMigrationTable+" (name, applied_at) VALUES (?, ?)",
			f.name, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f.name, err)
		}
	}
	return nil
}

func sqliteApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var found int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM "+sqliteMigrationTable+" WHERE name = ?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
