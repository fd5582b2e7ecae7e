// Package hybrid provides a read-through/write-through cache that keeps hot
// entries in a bounded in-process cache and every entry in the persistence
// store. The store is the source of truth for TTLs.
package hybrid

import (
	"context"
	stderrors "errors"
	"time"

	"cache-service/internal/common/errors"
	"cache-service/internal/common/logging"
	"cache-service/internal/common/validation"
	"cache-service/internal/localcache"
	"cache-service/internal/storage"
)

// TTL sentinels returned by GetTTL.
const (
	NoExpiry int64 = -1
	NotFound int64 = -2
)

// CacheStats merges persistence counts with in-memory counters.
type CacheStats struct {
	TotalEntries   int64   `json:"totalEntries"`
	ExpiredEntries int64   `json:"expiredEntries"`
	ActiveEntries  int64   `json:"activeEntries"`
	MemorySize     int     `json:"memorySize"`
	DatabaseSize   int64   `json:"databaseSize"`
	Hits           uint64  `json:"hits"`
	Misses         uint64  `json:"misses"`
	HitRate        float64 `json:"hitRate"`
}

type Manager struct {
	local  *localcache.Cache[string]
	repo   storage.Repository
	logger logging.Logger
	now    func() time.Time
}

type Option func(*Manager)

func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source used for expiry calculations. The
// local cache should share the same clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(repo storage.Repository, local *localcache.Cache[string], opts ...Option) *Manager {
	m := &Manager{
		local: local,
		repo:  repo,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrGlobal(m.logger, "hybrid-cache")
	return m
}

// Set stores value under key. A zero ttl means the entry never expires.
// Persistence failures are returned; the local copy is only written after
// the store accepted the entry.
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validation.NewValidator().
		RequireString(key, "key").
		RequireNonNegativeDuration(ttl, "ttl").
		Error(); err != nil {
		return err
	}

	now := m.now()
	var expireAt *time.Time
	var ttlSeconds *int64
	if ttl > 0 {
		at := now.Add(ttl)
		secs := int64((ttl + time.Second - 1) / time.Second)
		expireAt, ttlSeconds = &at, &secs
	}

	entry, err := m.repo.FindByKey(ctx, key)
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		entry = &storage.CacheEntry{Key: key, CreatedAt: now}
	case err != nil:
		m.logger.Error("Failed to load cache entry for update", err, logging.String("key", key))
		return errors.StorageError("failed to set cache entry", err).WithContext("key", key)
	}

	entry.Value = value
	entry.UpdatedAt = now
	entry.ExpireAt = expireAt
	entry.TTLSeconds = ttlSeconds
	entry.IsExpired = false

	if _, err := m.repo.Save(ctx, entry); err != nil {
		m.logger.Error("Failed to persist cache entry", err, logging.String("key", key))
		return errors.StorageError("failed to set cache entry", err).WithContext("key", key)
	}

	m.local.Put(key, value, localExpiry(expireAt))
	return nil
}

// Get returns the value for key. Local hits never touch the store; an entry
// found expired in the store is removed from both tiers.
func (m *Manager) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validation.NewValidator().RequireString(key, "key").Error(); err != nil {
		return "", false, err
	}

	if value, ok := m.local.Get(key); ok {
		return value, true, nil
	}

	entry, err := m.find(ctx, key)
	if err != nil || entry == nil {
		return "", false, err
	}

	if entry.HasExpired(m.now()) {
		m.evictExpired(ctx, key)
		return "", false, nil
	}

	m.local.Put(key, entry.Value, localExpiry(entry.ExpireAt))
	return entry.Value, true, nil
}

// Delete removes key from both tiers and reports whether a persisted entry
// existed. Store failures are logged and reported as false.
func (m *Manager) Delete(ctx context.Context, key string) bool {
	m.local.Remove(key)

	existed, err := m.repo.DeleteByKey(ctx, key)
	if err != nil {
		m.logger.Warn("Failed to delete cache entry",
			logging.String("key", key),
			logging.Err(err),
		)
		return false
	}
	return existed
}

// Exists reports whether key holds an unexpired value in either tier.
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	if m.local.ContainsKey(key) {
		return true, nil
	}

	entry, err := m.find(ctx, key)
	if err != nil || entry == nil {
		return false, err
	}
	return !entry.HasExpired(m.now()), nil
}

// GetTTL returns the remaining lifetime of key rounded to seconds, NoExpiry
// for entries without expiry and NotFound for absent or expired entries.
func (m *Manager) GetTTL(ctx context.Context, key string) (int64, error) {
	entry, err := m.find(ctx, key)
	if err != nil {
		return NotFound, err
	}
	if entry == nil {
		return NotFound, nil
	}
	if entry.ExpireAt == nil {
		return NoExpiry, nil
	}

	now := m.now()
	if entry.HasExpired(now) {
		return NotFound, nil
	}
	return int64((entry.ExpireAt.Sub(now) + time.Second/2) / time.Second), nil
}

// Expire sets a new ttl on an existing entry. The local copy is dropped so
// the next Get reads the new expiry from the store.
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := validation.NewValidator().
		RequireString(key, "key").
		RequirePositiveDuration(ttl, "ttl").
		Error(); err != nil {
		return false, err
	}

	entry, err := m.find(ctx, key)
	if err != nil || entry == nil {
		return false, err
	}

	now := m.now()
	if entry.HasExpired(now) {
		return false, nil
	}

	at := now.Add(ttl)
	secs := int64((ttl + time.Second - 1) / time.Second)
	entry.ExpireAt = &at
	entry.TTLSeconds = &secs
	entry.UpdatedAt = now
	entry.IsExpired = false

	if _, err := m.repo.Save(ctx, entry); err != nil {
		return false, errors.StorageError("failed to update cache entry expiry", err).WithContext("key", key)
	}

	m.local.Remove(key)
	return true, nil
}

// Clear empties both tiers.
func (m *Manager) Clear(ctx context.Context) error {
	m.local.Clear()

	if err := m.repo.DeleteAll(ctx); err != nil {
		return errors.StorageError("failed to clear cache entries", err)
	}
	m.logger.Info("Cache cleared")
	return nil
}

func (m *Manager) GetStats(ctx context.Context) (CacheStats, error) {
	total, err := m.repo.Count(ctx)
	if err != nil {
		return CacheStats{}, errors.StorageError("failed to count cache entries", err)
	}
	expired, err := m.repo.CountExpiredEntries(ctx)
	if err != nil {
		return CacheStats{}, errors.StorageError("failed to count expired cache entries", err)
	}

	local := m.local.Stats()
	return CacheStats{
		TotalEntries:   total,
		ExpiredEntries: expired,
		ActiveEntries:  total - expired,
		MemorySize:     local.Size,
		DatabaseSize:   total,
		Hits:           local.Hits,
		Misses:         local.Misses,
		HitRate:        local.HitRate,
	}, nil
}

// CleanupExpiredEntries removes expired rows from the store and returns how
// many were deleted.
func (m *Manager) CleanupExpiredEntries(ctx context.Context) (int64, error) {
	removed, err := m.repo.DeleteExpiredEntries(ctx)
	if err != nil {
		return 0, errors.StorageError("failed to delete expired cache entries", err)
	}
	if removed > 0 {
		m.logger.Info("Removed expired cache entries", logging.Int64("removed", removed))
	}
	return removed, nil
}

// Close stops the local cache's sweep. The repository is owned by the caller.
func (m *Manager) Close() {
	m.local.Close()
}

// find returns nil without error when key is absent.
func (m *Manager) find(ctx context.Context, key string) (*storage.CacheEntry, error) {
	entry, err := m.repo.FindByKey(ctx, key)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		m.logger.Error("Failed to read cache entry", err, logging.String("key", key))
		return nil, errors.StorageError("failed to read cache entry", err).WithContext("key", key)
	}
	return entry, nil
}

func (m *Manager) evictExpired(ctx context.Context, key string) {
	m.local.Remove(key)
	if _, err := m.repo.DeleteByKey(ctx, key); err != nil {
		m.logger.Warn("Failed to remove expired cache entry",
			logging.String("key", key),
			logging.Err(err),
		)
	}
}

func localExpiry(expireAt *time.Time) time.Time {
	if expireAt == nil {
		return time.Time{}
	}
	return *expireAt
}
