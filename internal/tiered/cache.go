package tiered

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"cache-service/internal/common/errors"
	"cache-service/internal/common/logging"
	"cache-service/internal/metrics"
	"cache-service/internal/redis"
)

// nullMarker is stored in place of an empty value so known misses are cached.
var nullMarker = []byte("\x00cache:null\x00")

// Loader produces the value for a key on a cache miss. An empty result is
// cached as a miss marker when the cache allows null values.
type Loader func(ctx context.Context) ([]byte, error)

// Cache is one named cache with an optional in-process L1 in front of the
// shared L2 store. Keys are scoped by the tenant found in the context.
//
// Lookup returns (nil, true) for a cached empty marker: the key is known to
// have no value and loaders are not called again until the marker expires.
type Cache struct {
	name     string
	manager  *Manager
	l1       *gocache.Cache
	locks    *stripedMutex
	l1Opened atomic.Bool
	logger   logging.Logger
}

func newCache(name string, m *Manager) *Cache {
	l1TTL := m.cfg.L1TTL
	if l1TTL <= 0 {
		l1TTL = gocache.NoExpiration
	}

	return &Cache{
		name:    name,
		manager: m,
		l1:      gocache.New(l1TTL, 0),
		locks:   newStripedMutex(m.cfg.LockStripes),
		logger:  m.logger.WithFields(logging.String("cache", name)),
	}
}

func (c *Cache) Name() string {
	return c.name
}

// L1Opened reports whether L1 has ever been consulted for this cache. It is
// informational and never changes lookup behavior.
func (c *Cache) L1Opened() bool {
	return c.l1Opened.Load()
}

// Lookup returns the cached value of key without loading it.
func (c *Cache) Lookup(ctx context.Context, key string) ([]byte, bool) {
	k := c.storeKey(ctx, key)
	open := c.l1Open(key)

	if open {
		if v, ok := c.l1.Get(k); ok {
			metrics.CacheRequests.WithLabelValues(c.name, "l1", metrics.ResultHit).Inc()
			return decode(v.([]byte))
		}
		metrics.CacheRequests.WithLabelValues(c.name, "l1", metrics.ResultMiss).Inc()
	}

	var value []byte
	err := c.manager.breaker.Execute(ctx, func() error {
		v, err := c.manager.store.GetBytes(ctx, k)
		if redis.IsNil(err) {
			return nil
		}
		value = v
		return err
	})
	if err != nil {
		c.logger.Warn("L2 read failed, treating as miss",
			logging.String("key", k),
			logging.Err(err),
		)
		metrics.CacheRequests.WithLabelValues(c.name, "l2", metrics.ResultError).Inc()
		return nil, false
	}
	if value == nil {
		metrics.CacheRequests.WithLabelValues(c.name, "l2", metrics.ResultMiss).Inc()
		return nil, false
	}

	metrics.CacheRequests.WithLabelValues(c.name, "l2", metrics.ResultHit).Inc()
	if open {
		c.l1.Set(k, value, c.l1TTLFor(value))
	}
	return decode(value)
}

// Get returns the cached value of key, calling loader at most once per
// process for concurrent misses on the same key.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) ([]byte, error) {
	if v, ok := c.Lookup(ctx, key); ok {
		return v, nil
	}

	mu := c.locks.forKey(c.storeKey(ctx, key))
	mu.Lock()
	defer mu.Unlock()

	if v, ok := c.Lookup(ctx, key); ok {
		return v, nil
	}

	value, err := loader(ctx)
	if err != nil {
		metrics.CacheLoads.WithLabelValues(c.name, metrics.ResultError).Inc()
		return nil, errors.InternalError("cache loader failed", err).
			WithContext("cache", c.name).
			WithContext("key", key)
	}
	metrics.CacheLoads.WithLabelValues(c.name, metrics.ResultOK).Inc()

	if err := c.Put(ctx, key, value); err != nil {
		c.logger.Warn("Failed to cache loaded value",
			logging.String("key", key),
			logging.Err(err),
		)
	}
	return value, nil
}

// Put writes value to L2, invalidates L1 on every node and refreshes the
// local L1. An empty value goes through the miss-marker path.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	if len(value) == 0 {
		return c.putEmpty(ctx, key)
	}
	return c.write(ctx, key, value, c.manager.cfg.ttlFor(c.name))
}

// putEmpty evicts the key when nulls are disallowed, otherwise stores the
// marker with the penetration TTL for configured names and keys and the
// regular TTL for the rest.
func (c *Cache) putEmpty(ctx context.Context, key string) error {
	cfg := c.manager.cfg
	if !cfg.allowNull(c.name) {
		return c.Evict(ctx, key)
	}

	ttl := cfg.ttlFor(c.name)
	if cfg.penetrationFor(c.name, key) {
		ttl = cfg.PenetrationTTL
	}
	return c.write(ctx, key, nullMarker, ttl)
}

func (c *Cache) write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k := c.storeKey(ctx, key)

	err := c.manager.breaker.Execute(ctx, func() error {
		return c.manager.store.Set(ctx, k, value, ttl)
	})
	if err != nil {
		return errors.ConnectionError("failed to write cache entry", err).
			WithContext("cache", c.name).
			WithContext("key", key)
	}

	if c.l1Open(key) {
		c.manager.publish(ctx, InvalidationMessage{CacheName: c.name, Key: k})
		c.l1.Set(k, value, c.l1TTLFor(value))
	}
	return nil
}

// PutIfAbsent stores value only when key has no L2 entry. It returns the
// existing value and false when the key was already present.
func (c *Cache) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	cfg := c.manager.cfg
	payload, ttl := value, cfg.ttlFor(c.name)
	if len(value) == 0 {
		if !cfg.allowNull(c.name) {
			existing, _ := c.Lookup(ctx, key)
			return existing, false, nil
		}
		payload = nullMarker
		if cfg.penetrationFor(c.name, key) {
			ttl = cfg.PenetrationTTL
		}
	}

	k := c.storeKey(ctx, key)
	var stored bool
	err := c.manager.breaker.Execute(ctx, func() error {
		var err error
		stored, err = c.manager.store.SetNX(ctx, k, string(payload), ttl)
		return err
	})
	if err != nil {
		return nil, false, errors.ConnectionError("failed to write cache entry", err).
			WithContext("cache", c.name).
			WithContext("key", key)
	}

	if !stored {
		existing, _ := c.Lookup(ctx, key)
		return existing, false, nil
	}

	if c.l1Open(key) {
		c.manager.publish(ctx, InvalidationMessage{CacheName: c.name, Key: k})
		c.l1.Set(k, payload, c.l1TTLFor(payload))
	}
	return nil, true, nil
}

// Evict deletes keys from L2, then invalidates them in every node's L1.
func (c *Cache) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	storeKeys := make([]string, len(keys))
	for i, key := range keys {
		storeKeys[i] = c.storeKey(ctx, key)
	}

	err := c.manager.breaker.Execute(ctx, func() error {
		_, err := c.manager.store.Delete(ctx, storeKeys...)
		return err
	})
	if err != nil {
		return errors.ConnectionError("failed to evict cache entries", err).
			WithContext("cache", c.name)
	}

	for i, key := range keys {
		if c.l1Open(key) {
			c.manager.publish(ctx, InvalidationMessage{CacheName: c.name, Key: storeKeys[i]})
		}
		c.l1.Delete(storeKeys[i])
	}
	return nil
}

// Clear deletes every L2 entry of this cache for the context's tenant and
// clears L1 on every node.
func (c *Cache) Clear(ctx context.Context) error {
	if err := ValidateTenant(TenantFromContext(ctx)); err != nil {
		return err
	}
	pattern := globEscaper.Replace(c.tenantPrefix(ctx)) + "*"

	var removed int64
	err := c.manager.breaker.Execute(ctx, func() error {
		keys, err := c.manager.store.ScanKeys(ctx, pattern)
		if err != nil {
			return err
		}
		for start := 0; start < len(keys); start += clearBatchSize {
			end := start + clearBatchSize
			if end > len(keys) {
				end = len(keys)
			}
			n, err := c.manager.store.Delete(ctx, keys[start:end]...)
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return errors.ConnectionError("failed to clear cache", err).WithContext("cache", c.name)
	}

	if c.manager.cfg.L1.Mode != L1Disabled {
		c.manager.publish(ctx, InvalidationMessage{CacheName: c.name})
	}
	c.l1.Flush()

	c.logger.WithContext(ctx).Info("Cache cleared", logging.Int64("removed", removed))
	return nil
}

const clearBatchSize = 500

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// ClearLocal drops key from this node's L1, or every entry when key is empty.
func (c *Cache) ClearLocal(ctx context.Context, key string) {
	if key == "" {
		c.l1.Flush()
		return
	}
	c.l1.Delete(c.storeKey(ctx, key))
}

// invalidate applies an invalidation message. storeKey is already tenant
// qualified.
func (c *Cache) invalidate(storeKey string) {
	if storeKey == "" {
		c.l1.Flush()
		return
	}
	c.l1.Delete(storeKey)
}

func (c *Cache) l1Open(key string) bool {
	if !c.manager.cfg.L1.open(c.name, key) {
		return false
	}
	c.l1Opened.Store(true)
	return true
}

func (c *Cache) l1TTLFor(value []byte) time.Duration {
	ttl := c.manager.cfg.L1TTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	if bytes.Equal(value, nullMarker) {
		if p := c.manager.cfg.PenetrationTTL; p > 0 && (ttl == gocache.NoExpiration || p < ttl) {
			return p
		}
	}
	return ttl
}

func (c *Cache) tenantPrefix(ctx context.Context) string {
	return c.manager.cfg.KeyPrefix + c.name + ":" + TenantFromContext(ctx) + ":"
}

func (c *Cache) storeKey(ctx context.Context, key string) string {
	return c.tenantPrefix(ctx) + key
}

func decode(v []byte) ([]byte, bool) {
	if bytes.Equal(v, nullMarker) {
		return nil, true
	}
	return v, true
}
