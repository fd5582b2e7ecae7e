// Package config provides configuration management for the cache service.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration so the application starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Optional log file path (default: stdout)
//   - LOG_FORMAT: "console" or "json" (default: console)
//   - NODE_ID: Identifier of this node in logs and lock holders (default: random uuid)
//
// Database Configuration:
//   - DATABASE_TYPE: Database type - "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./cache_service.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Local Cache:
//   - LOCAL_CACHE_MAX_SIZE: Maximum entries in the in-process cache (default: 10000)
//   - LOCAL_CACHE_SWEEP_DELAY: Delay before the first expiry sweep (default: 300s)
//   - LOCAL_CACHE_SWEEP_INTERVAL: Period of the expiry sweep (default: 300s)
//
// Tiered Cache:
//   - TIERED_DEFAULT_TTL: L2 expiration when a cache has none configured (default: 0, never)
//   - TIERED_PENETRATION_TTL: Expiration of cached empty markers (default: 5m)
//   - TIERED_L1_TTL: Expiration of L1 entries (default: 5m)
//   - TIERED_L1_MODE: "" (disabled), "all" or "manual"
//   - TIERED_L1_CACHE_NAMES: Cache names with L1 enabled in manual mode
//   - TIERED_L1_KEYS: name:key pairs with L1 enabled in manual mode
//   - TIERED_PENETRATION_CACHE_NAMES: Cache names that cache empty results
//   - TIERED_PENETRATION_KEYS: name:key pairs that cache empty results
//   - TIERED_CACHE_TTLS: Per-cache expirations, e.g. "users=10m,orders=30s"
//   - TIERED_NULL_DISALLOWED: Cache names where empty writes become evictions
//   - INVALIDATION_TOPIC: Pub/sub channel for L1 invalidation (default: cache:invalidation)
//
// Maintenance:
//   - CLEANUP_SCHEDULE: Cron spec of the expired-entry cleanup (default: @every 10m)
//   - CLEANUP_LOCK_TTL: Lease held by the node running the cleanup (default: 1m)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"cache-service/internal/common/validation"
)

// L1 modes accepted by TIERED_L1_MODE.
const (
	L1ModeDisabled = ""
	L1ModeAll      = "all"
	L1ModeManual   = "manual"
)

// Config holds all configuration values for the cache service.
//
// The configuration is loaded using Load() and should be validated using
// Validate() before use. Values that fail to parse are remembered and
// reported by Validate rather than silently replaced by defaults.
type Config struct {
	// Application settings
	Port     string
	LogLevel  string
	LogFile   string
	LogFormat string
	NodeID    string

	// Database configuration
	DatabaseType     string // "sqlite" or "postgres"
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Redis configuration
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// Local cache
	LocalCacheMaxSize       int
	LocalCacheSweepDelay    time.Duration
	LocalCacheSweepInterval time.Duration

	// Tiered cache
	TieredDefaultTTL            time.Duration
	TieredPenetrationTTL        time.Duration
	TieredL1TTL                 time.Duration
	TieredL1Mode                string
	TieredL1CacheNames          []string
	TieredL1Keys                []string
	TieredPenetrationCacheNames []string
	TieredPenetrationKeys       []string
	TieredCacheTTLs             map[string]time.Duration
	TieredNullDisallowed        []string
	InvalidationTopic           string

	// Maintenance
	CleanupSchedule string
	CleanupLockTTL  time.Duration

	parseErrors []string
}

// Load creates a new Config with values loaded from environment variables.
// If a variable is not set, the corresponding default value is used.
//
// This function does not validate the configuration - call Validate() on the
// returned Config to ensure all values are properly set and valid.
func Load() *Config {
	c := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", ""),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
		NodeID:    getEnv("NODE_ID", uuid.NewString()),

		DatabaseType:     strings.ToLower(getEnv("DATABASE_TYPE", "sqlite")),
		DatabasePath:     getEnv("DATABASE_PATH", "./cache_service.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "cache_service"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		TieredL1Mode:                strings.ToLower(getEnv("TIERED_L1_MODE", L1ModeDisabled)),
		TieredL1CacheNames:          getListEnv("TIERED_L1_CACHE_NAMES"),
		TieredL1Keys:                getListEnv("TIERED_L1_KEYS"),
		TieredPenetrationCacheNames: getListEnv("TIERED_PENETRATION_CACHE_NAMES"),
		TieredPenetrationKeys:       getListEnv("TIERED_PENETRATION_KEYS"),
		TieredNullDisallowed:        getListEnv("TIERED_NULL_DISALLOWED"),
		InvalidationTopic:           getEnv("INVALIDATION_TOPIC", "cache:invalidation"),

		CleanupSchedule: getEnv("CLEANUP_SCHEDULE", "@every 10m"),
	}

	c.LocalCacheMaxSize = c.intEnv("LOCAL_CACHE_MAX_SIZE", 10000)
	c.LocalCacheSweepDelay = c.durationEnv("LOCAL_CACHE_SWEEP_DELAY", 300*time.Second)
	c.LocalCacheSweepInterval = c.durationEnv("LOCAL_CACHE_SWEEP_INTERVAL", 300*time.Second)
	c.TieredDefaultTTL = c.durationEnv("TIERED_DEFAULT_TTL", 0)
	c.TieredPenetrationTTL = c.durationEnv("TIERED_PENETRATION_TTL", 5*time.Minute)
	c.TieredL1TTL = c.durationEnv("TIERED_L1_TTL", 5*time.Minute)
	c.TieredCacheTTLs = c.durationMapEnv("TIERED_CACHE_TTLS")
	c.CleanupLockTTL = c.durationEnv("CLEANUP_LOCK_TTL", time.Minute)

	return c
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a comma separated variable, trimming blanks and duplicates.
func getListEnv(key string) []string {
	return splitList(os.Getenv(key))
}

func splitList(raw string) []string {
	parts := lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Uniq(lo.Compact(parts))
}

func (c *Config) intEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s must be an integer", key))
		return defaultValue
	}
	return parsed
}

func (c *Config) durationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s must be a valid duration (e.g., '60s', '5m')", key))
		return defaultValue
	}
	return parsed
}

// durationMapEnv parses "name=duration" pairs.
func (c *Config) durationMapEnv(key string) map[string]time.Duration {
	result := make(map[string]time.Duration)
	for _, pair := range getListEnv(key) {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s entry %q must look like name=duration", key, pair))
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s entry %q has an invalid duration", key, pair))
			continue
		}
		result[name] = d
	}
	return result
}

// Validate checks that all values are present and within range.
//
// This method checks:
//   - values that failed to parse during Load
//   - ports, Redis database number and pool size
//   - PostgreSQL settings when DATABASE_TYPE is postgres
//   - cache sizes, TTLs, L1 mode and the cleanup schedule
func (c *Config) Validate() error {
	v := validation.NewValidator()

	for _, msg := range c.parseErrors {
		msg := msg
		v.Validate(func() error { return fmt.Errorf("%s", msg) })
	}

	v.Validate(func() error { return validPort(c.Port, "PORT") })
	v.RequireOneOf(c.LogFormat, []string{"console", "json"}, "LOG_FORMAT")
	v.RequireOneOf(c.DatabaseType, []string{"sqlite", "postgres"}, "DATABASE_TYPE")
	v.ValidateIf(c.DatabaseType == "sqlite", func() error {
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
		return nil
	})
	v.ValidateIf(c.DatabaseType == "postgres", func() error {
		if lo.SomeBy([]string{c.PostgresHost, c.PostgresDB, c.PostgresUser}, func(s string) bool {
			return strings.TrimSpace(s) == ""
		}) {
			return fmt.Errorf("POSTGRES_HOST, POSTGRES_DB and POSTGRES_USER are required when using PostgreSQL")
		}
		return validPort(c.PostgresPort, "POSTGRES_PORT")
	})

	v.RequireString(c.RedisAddress, "REDIS_ADDRESS")
	v.Validate(func() error {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		return nil
	})
	v.Validate(func() error {
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
		return nil
	})

	v.RequirePositive(c.LocalCacheMaxSize, "LOCAL_CACHE_MAX_SIZE").
		RequireNonNegativeDuration(c.LocalCacheSweepDelay, "LOCAL_CACHE_SWEEP_DELAY").
		RequireNonNegativeDuration(c.LocalCacheSweepInterval, "LOCAL_CACHE_SWEEP_INTERVAL").
		RequireNonNegativeDuration(c.TieredDefaultTTL, "TIERED_DEFAULT_TTL").
		RequirePositiveDuration(c.TieredPenetrationTTL, "TIERED_PENETRATION_TTL").
		RequireNonNegativeDuration(c.TieredL1TTL, "TIERED_L1_TTL").
		RequireOneOf(c.TieredL1Mode, []string{L1ModeDisabled, L1ModeAll, L1ModeManual}, "TIERED_L1_MODE").
		RequireString(c.InvalidationTopic, "INVALIDATION_TOPIC").
		RequirePositiveDuration(c.CleanupLockTTL, "CLEANUP_LOCK_TTL")

	for name, ttl := range c.TieredCacheTTLs {
		v.RequireNonNegativeDuration(ttl, "TIERED_CACHE_TTLS["+name+"]")
	}

	v.Validate(func() error {
		return validation.ValidateStruct(struct {
			Schedule string `json:"CLEANUP_SCHEDULE" validate:"required,cron_expression"`
		}{Schedule: c.CleanupSchedule})
	})

	return v.Error()
}

func validPort(value, name string) error {
	if port, err := strconv.Atoi(value); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%s must be a valid port number between 1 and 65535", name)
	}
	return nil
}

// RedisDBNumber returns REDIS_DB as an int. Call Validate first.
func (c *Config) RedisDBNumber() int {
	n, _ := strconv.Atoi(c.RedisDB)
	return n
}

// RedisPoolSizeNumber returns REDIS_POOL_SIZE as an int. Call Validate first.
func (c *Config) RedisPoolSizeNumber() int {
	n, _ := strconv.Atoi(c.RedisPoolSize)
	return n
}

// PostgresPortNumber returns POSTGRES_PORT as an int. Call Validate first.
func (c *Config) PostgresPortNumber() int {
	n, _ := strconv.Atoi(c.PostgresPort)
	return n
}
