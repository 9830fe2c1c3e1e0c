package postgres_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ico/internal/domain"
	"solana-ico/internal/storage"
	"solana-ico/internal/storage/migrations"
	"solana-ico/internal/storage/postgres"
	"solana-ico/internal/storage/storagetest"
)

func openPool(t *testing.T) *postgres.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, storagetest.PostgresDSN(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool))
	return pool
}

func TestActionStore(t *testing.T) {
	pool := openPool(t)

	storagetest.RunActionStore(t, func(t *testing.T) storage.ActionStore {
		_, err := pool.Exec(context.Background(), "TRUNCATE actions")
		require.NoError(t, err)
		return postgres.NewActionStore(pool)
	})
}

func TestActionStore_LargeAmountsRoundTrip(t *testing.T) {
	store := postgres.NewActionStore(openPool(t))
	ctx := context.Background()

	a := storagetest.NewAction(domain.ActionDeposit, "admin", math.MaxUint64, 1700000000000)
	a.Lamports = math.MaxUint64 - 1
	require.NoError(t, store.Insert(ctx, a))

	got, err := store.GetByID(ctx, a.ActionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got.Amount)
	assert.Equal(t, uint64(math.MaxUint64-1), got.Lamports)
}

func TestRunPostgresMigrations_RecordsEachFileOnce(t *testing.T) {
	pool := openPool(t)
	ctx := context.Background()

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool))

	var applied int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestNewPool_BadDSN(t *testing.T) {
	_, err := postgres.NewPool(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}
