package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cache-service/internal/common/errors"
)

var testEnvVars = []string{
	"PORT", "LOG_LEVEL", "LOG_FILE", "LOG_FORMAT", "NODE_ID",
	"DATABASE_TYPE", "DATABASE_PATH",
	"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_SSL_MODE",
	"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"LOCAL_CACHE_MAX_SIZE", "LOCAL_CACHE_SWEEP_DELAY", "LOCAL_CACHE_SWEEP_INTERVAL",
	"TIERED_DEFAULT_TTL", "TIERED_PENETRATION_TTL", "TIERED_L1_TTL", "TIERED_L1_MODE",
	"TIERED_L1_CACHE_NAMES", "TIERED_L1_KEYS", "TIERED_PENETRATION_CACHE_NAMES", "TIERED_PENETRATION_KEYS",
	"TIERED_CACHE_TTLS", "TIERED_NULL_DISALLOWED", "INVALIDATION_TOPIC",
	"CLEANUP_SCHEDULE", "CLEANUP_LOCK_TTL",
}

func clearTestEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range testEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearTestEnvVars(t)

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.NotEmpty(t, cfg.NodeID)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "./cache_service.db", cfg.DatabasePath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, 10000, cfg.LocalCacheMaxSize)
	assert.Equal(t, 300*time.Second, cfg.LocalCacheSweepDelay)
	assert.Equal(t, 300*time.Second, cfg.LocalCacheSweepInterval)
	assert.Equal(t, time.Duration(0), cfg.TieredDefaultTTL)
	assert.Equal(t, 5*time.Minute, cfg.TieredPenetrationTTL)
	assert.Equal(t, L1ModeDisabled, cfg.TieredL1Mode)
	assert.Empty(t, cfg.TieredL1CacheNames)
	assert.Empty(t, cfg.TieredCacheTTLs)
	assert.Equal(t, "cache:invalidation", cfg.InvalidationTopic)
	assert.Equal(t, "@every 10m", cfg.CleanupSchedule)
	assert.Equal(t, time.Minute, cfg.CleanupLockTTL)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearTestEnvVars(t)
	t.Setenv("NODE_ID", "node-a")
	t.Setenv("DATABASE_TYPE", "POSTGRES")
	t.Setenv("LOCAL_CACHE_MAX_SIZE", "50")
	t.Setenv("TIERED_L1_MODE", "manual")
	t.Setenv("TIERED_L1_CACHE_NAMES", " users, orders ,,users")
	t.Setenv("TIERED_L1_KEYS", "products:42")
	t.Setenv("TIERED_CACHE_TTLS", "users=10m, orders=30s")
	t.Setenv("TIERED_NULL_DISALLOWED", "orders")

	cfg := Load()

	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.Equal(t, 50, cfg.LocalCacheMaxSize)
	assert.Equal(t, L1ModeManual, cfg.TieredL1Mode)
	assert.Equal(t, []string{"users", "orders"}, cfg.TieredL1CacheNames)
	assert.Equal(t, []string{"products:42"}, cfg.TieredL1Keys)
	assert.Equal(t, map[string]time.Duration{"users": 10 * time.Minute, "orders": 30 * time.Second}, cfg.TieredCacheTTLs)
	assert.Equal(t, []string{"orders"}, cfg.TieredNullDisallowed)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5432, cfg.PostgresPortNumber())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "invalid port", env: map[string]string{"PORT": "99999"}, wantErr: "PORT must be a valid port"},
		{name: "unknown log format", env: map[string]string{"LOG_FORMAT": "xml"}, wantErr: "LOG_FORMAT must be one of"},
		{name: "unknown database", env: map[string]string{"DATABASE_TYPE": "mysql"}, wantErr: "DATABASE_TYPE must be one of"},
		{name: "postgres without host", env: map[string]string{"DATABASE_TYPE": "postgres", "POSTGRES_HOST": " "}, wantErr: "POSTGRES_HOST, POSTGRES_DB and POSTGRES_USER are required"},
		{name: "redis db out of range", env: map[string]string{"REDIS_DB": "16"}, wantErr: "REDIS_DB must be a number between 0 and 15"},
		{name: "zero pool", env: map[string]string{"REDIS_POOL_SIZE": "0"}, wantErr: "REDIS_POOL_SIZE must be a positive number"},
		{name: "bad max size", env: map[string]string{"LOCAL_CACHE_MAX_SIZE": "lots"}, wantErr: "LOCAL_CACHE_MAX_SIZE must be an integer"},
		{name: "zero max size", env: map[string]string{"LOCAL_CACHE_MAX_SIZE": "0"}, wantErr: "LOCAL_CACHE_MAX_SIZE must be positive"},
		{name: "bad duration", env: map[string]string{"TIERED_L1_TTL": "soon"}, wantErr: "TIERED_L1_TTL must be a valid duration"},
		{name: "negative default ttl", env: map[string]string{"TIERED_DEFAULT_TTL": "-1s"}, wantErr: "TIERED_DEFAULT_TTL must be non-negative"},
		{name: "unknown l1 mode", env: map[string]string{"TIERED_L1_MODE": "sometimes"}, wantErr: "TIERED_L1_MODE must be one of"},
		{name: "malformed cache ttl", env: map[string]string{"TIERED_CACHE_TTLS": "users"}, wantErr: "must look like name=duration"},
		{name: "bad cron", env: map[string]string{"CLEANUP_SCHEDULE": "every now and then"}, wantErr: "CLEANUP_SCHEDULE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnvVars(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := Load().Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
