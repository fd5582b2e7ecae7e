package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"cache-service/internal/redis"
	"cache-service/internal/storage"
	"cache-service/internal/storage/sqlite"
)

// NewRedis starts a miniredis server and a client connected to it. Both are
// closed when the test ends.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.Config{Address: mr.Addr(), PoolSize: 10})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return mr, client
}

// NewSQLiteRepository opens a fresh in-memory repository.
func NewSQLiteRepository(t *testing.T) storage.Repository {
	t.Helper()

	repo, err := sqlite.NewAdapter(&sqlite.Config{DatabasePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}
