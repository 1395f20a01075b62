package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "rig.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)

	values, err := store.LoadCounters(ctx)
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, store.SaveCounters(ctx, map[string]int64{"longtime": 10, "shorttime": 2}))
	require.NoError(t, store.SaveCounters(ctx, map[string]int64{"shorttime": 3}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	values, err = reopened.LoadCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"longtime": 10, "shorttime": 3}, values)
}

// Runs only against a real server, e.g.
// RIG_TEST_POSTGRES_HOST=localhost go test ./internal/storage
func TestPostgresRoundTrip(t *testing.T) {
	host := os.Getenv("RIG_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("RIG_TEST_POSTGRES_HOST not set")
	}
	ctx := context.Background()

	client, err := NewPostgresClient(ctx, config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		Database: "rig_test",
		User:     "rig",
		Password: os.Getenv("RIG_TEST_POSTGRES_PASSWORD"),
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SaveCounters(ctx, map[string]int64{"longtime": 42}))
	values, err := client.LoadCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), values["longtime"])
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	require.NoError(t, mem.SaveCounters(ctx, map[string]int64{"longtime": 4}))
	values, err := mem.LoadCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), values["longtime"])
	assert.NoError(t, mem.Close())

	lite, err := Open(ctx, config.StorageConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "rig.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, lite)
	assert.NoError(t, lite.Close())

	_, err = Open(ctx, config.StorageConfig{Driver: "etcd"})
	assert.Error(t, err)
}
