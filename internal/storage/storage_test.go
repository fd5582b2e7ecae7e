package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cache-service/internal/common/errors"
)

func TestDialectRebind(t *testing.T) {
	query := "SELECT a FROM t WHERE x = ? AND y < ?"

	assert.Equal(t, query, SQLiteDialect.rebind(query))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y < $2", PostgresDialect.rebind(query))
}

func TestCacheEntryHasExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.False(t, (&CacheEntry{}).HasExpired(now), "no expiry never expires")
	assert.True(t, (&CacheEntry{ExpireAt: &past}).HasExpired(now))
	assert.False(t, (&CacheEntry{ExpireAt: &future}).HasExpired(now))
	assert.False(t, (&CacheEntry{ExpireAt: &now}).HasExpired(now), "expiry is exclusive")
}

type stubFactory struct{ created int }

func (f *stubFactory) Create(StorageConfig) (Repository, error) {
	f.created++
	return nil, nil
}

func (f *stubFactory) GetType() string { return "stub" }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.IsRegistered("stub"))

	_, err := r.Create("stub", GenericConfig{"type": "stub"})
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	f := &stubFactory{}
	r.Register("stub", f)
	assert.True(t, r.IsRegistered("stub"))
	assert.Equal(t, []string{"stub"}, r.GetAvailableTypes())
	assert.Panics(t, func() { r.Register("stub", f) })

	_, err = r.Create("stub", GenericConfig{})
	assert.Error(t, err, "config is validated before the factory runs")
	assert.Zero(t, f.created)

	_, err = r.Create("stub", GenericConfig{"type": "stub"})
	assert.NoError(t, err)
	assert.Equal(t, 1, f.created)
}

func TestGenericConfig(t *testing.T) {
	cfg := GenericConfig{"type": "postgres", "host": "db", "port": 6543}

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres", cfg.GetType())
	assert.Equal(t, "db", cfg.String("host", "localhost"))
	assert.Equal(t, "fallback", cfg.String("missing", "fallback"))
	assert.Equal(t, 6543, cfg.Int("port", 5432))
	assert.Error(t, GenericConfig{}.Validate())
}
