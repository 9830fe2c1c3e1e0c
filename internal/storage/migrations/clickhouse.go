package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	chstore "solana-ico/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database if needed, applies the
// embedded files not yet listed in schema_migrations and returns a
// connection to that database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	database, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := createDatabase(ctx, dsn, database); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, database)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse %s: %w", database, err)
	}
	if err := migrateClickhouse(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func createDatabase(ctx context.Context, dsn, database string) error {
	conn, err := chstore.NewConnWithDatabase(ctx, dsn, "default")
	if err != nil {
		return fmt.Errorf("connect clickhouse server: %w", err)
	}
	defer conn.Close()

	if err := conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS `"+database+"`"); err != nil {
		return fmt.Errorf("create database %s: %w", database, err)
	}
	return nil
}

func migrateClickhouse(ctx context.Context, conn *chstore.Conn) error {
	files, err := readMigrations(schemaFS, "clickhouse")
	if err != nil {
		return err
	}

	if err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       String,
			applied_at UInt64
		) ENGINE = MergeTree()
		ORDER BY name
	`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, f := range files {
		var count uint64
		if err := conn.QueryRow(ctx,
			"SELECT count() FROM schema_migrations WHERE name = ?", f.name,
		).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", f.name, err)
		}
		if count > 0 {
			continue
		}

		up := upSection(f.sql)
		if err := checkStringLiterals(up); err != nil {
			return fmt.Errorf("migration %s: %w", f.name, err)
		}
		// The native protocol takes one statement per Exec.
		for _, stmt := range splitStatements(up) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", f.name, err)
			}
		}

		if err := conn.Exec(ctx,
			"INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)",
			f.name, uint64(time.Now().UTC().UnixMilli()),
		); err != nil {
			return fmt.Errorf("record migration %s: %w", f.name, err)
		}
	}
	return nil
}

// splitStatements drops "--" comment lines and splits on semicolons.
func splitStatements(sql string) []string {
	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "--") {
			kept = append(kept, line)
		}
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// checkStringLiterals rejects semicolons inside single-quoted literals,
// which splitStatements would cut in half. Doubled quotes are escapes.
func checkStringLiterals(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
		case ';':
			if quoted {
				return fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	database := strings.TrimPrefix(u.Path, "/")
	if database == "" {
		return "", fmt.Errorf("clickhouse dsn %q names no database", u.Redacted())
	}
	return database, nil
}
