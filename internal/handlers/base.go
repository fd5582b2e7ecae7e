// Package handlers exposes the cache over a small management REST API.
// Every response is an Envelope written with HTTP 200; the outcome is carried
// in its code.
package handlers

import (
	"context"
	"time"

	"cache-service/internal/circuitbreaker"
	"cache-service/internal/common/logging"
	"cache-service/internal/common/validation"
	"cache-service/internal/hybrid"
	"cache-service/internal/tiered"
)

// HybridCache is the key-value surface behind /api/cache.
type HybridCache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) bool
	Exists(ctx context.Context, key string) (bool, error)
	GetTTL(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Clear(ctx context.Context) error
	GetStats(ctx context.Context) (hybrid.CacheStats, error)
	CleanupExpiredEntries(ctx context.Context) (int64, error)
}

// TieredCaches is the named-cache registry behind /api/tiered.
type TieredCaches interface {
	Cache(name string) *tiered.Cache
	Lookup(name string) (*tiered.Cache, bool)
	CacheNames() []string
	BreakerStats() circuitbreaker.Stats
}

// HealthCheck reports an error when a dependency is unusable.
type HealthCheck func() error

type Handlers struct {
	cache     HybridCache
	tiered    TieredCaches
	checks    map[string]HealthCheck
	validator *validation.CentralizedValidator
	logger    logging.Logger
	now       func() time.Time
}

type Option func(*Handlers)

// WithTiered enables the /api/tiered routes.
func WithTiered(caches TieredCaches) Option {
	return func(h *Handlers) { h.tiered = caches }
}

// WithHealthCheck adds a named dependency to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handlers) { h.checks[name] = check }
}

func WithLogger(logger logging.Logger) Option {
	return func(h *Handlers) { h.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handlers) { h.now = now }
}

func New(cache HybridCache, opts ...Option) *Handlers {
	h := &Handlers{
		cache:     cache,
		checks:    make(map[string]HealthCheck),
		validator: validation.NewCentralizedValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrGlobal(h.logger, "handlers")
	return h
}
