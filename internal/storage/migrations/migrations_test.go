package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestReadMigrations_Embedded(t *testing.T) {
	for _, tt := range []struct {
		dir  string
		want string
	}{
		{"postgres", "001_actions.sql"},
		{"clickhouse", "001_sale_snapshots.sql"},
		{"sqlite", "001_actions.sql"},
	} {
		files, err := readMigrations(schemaFS, tt.dir)
		require.NoError(t, err, tt.dir)
		require.NotEmpty(t, files, tt.dir)
		assert.Equal(t, tt.want, files[0].name)
	}
}

func TestUpSection(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (x INT);\n", upSection(content))
	assert.Equal(t, "SELECT 1;", upSection("SELECT 1;"))
}

func TestSplitStatements(t *testing.T) {
	input := `-- comment
CREATE TABLE a (x UInt8);

-- another
CREATE TABLE b (y UInt8)
ENGINE = Memory;
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8)", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y UInt8)\nENGINE = Memory", stmts[1])
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, checkStringLiterals("SELECT 'a''b'; SELECT 1;"))
	assert.Error(t, checkStringLiterals("SELECT 'a;b';"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:pw@localhost:9000/ico")
	require.NoError(t, err)
	assert.Equal(t, "ico", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestRunSqliteMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "ico.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, RunSqliteMigrations(ctx, db))
	require.NoError(t, RunSqliteMigrations(ctx, db))

	var applied int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)

	_, err = db.Exec(`INSERT INTO actions (action_id, kind, wallet, amount, status, created_at) VALUES ('a', 'buy', 'w', 1, 'confirmed', 1)`)
	assert.NoError(t, err)
}

func TestRunSqliteMigrations_NilDB(t *testing.T) {
	assert.Error(t, RunSqliteMigrations(context.Background(), nil))
}

func TestRunPostgresMigrations_NilPool(t *testing.T) {
	assert.Error(t, RunPostgresMigrations(context.Background(), nil))
}
