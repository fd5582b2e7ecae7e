// Package tiered implements named two-level caches: an optional in-process
// L1 (go-cache) in front of a shared Redis L2, kept coherent across nodes by
// invalidation messages on a pub/sub channel.
//
// Consistency between nodes is eventual. A node drops its L1 copy when the
// invalidation for a write arrives, so until then it may serve the previous
// value. Within a node, a write is published before the local L1 is
// refreshed.
//
// Example usage:
//
//	m := tiered.NewManager(redisClient, tiered.NewConfig(cfg), logger)
//	if err := m.Start(ctx); err != nil {
//		return err
//	}
//	defer m.Close()
//
//	users := m.Cache("users")
//	data, err := users.Get(ctx, "42", func(ctx context.Context) ([]byte, error) {
//		return loadUser(ctx, "42")
//	})
package tiered

import (
	"context"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cache-service/internal/circuitbreaker"
	"cache-service/internal/common/errors"
	"cache-service/internal/common/logging"
	"cache-service/internal/metrics"
	"cache-service/internal/redis"
)

// Store is the shared store used for L2 and the invalidation channel.
// *redis.Client implements it.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	Publish(ctx context.Context, channel string, message []byte) (int64, error)
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

var _ Store = (*redis.Client)(nil)

// Manager owns the named caches of one node and the invalidation subscriber
// that keeps their L1 tiers in sync with the other nodes.
type Manager struct {
	store   Store
	cfg     Config
	breaker *circuitbreaker.GoBreakerAdapter
	logger  logging.Logger

	mu     sync.RWMutex
	caches map[string]*Cache

	subMu  sync.Mutex
	sub    *goredis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(store Store, cfg Config, logger logging.Logger) *Manager {
	logger = logging.OrGlobal(logger, "tiered-cache")
	if cfg.Topic == "" {
		cfg.Topic = DefaultConfig().Topic
	}

	return &Manager{
		store:   store,
		cfg:     cfg,
		breaker: circuitbreaker.NewGoBreaker("cache-l2", cfg.Breaker, logger),
		logger:  logger,
		caches:  make(map[string]*Cache),
	}
}

// Lookup returns the cache called name if it has been created.
func (m *Manager) Lookup(name string) (*Cache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.caches[name]
	return c, ok
}

// Cache returns the cache called name, creating it on first use.
func (m *Manager) Cache(name string) *Cache {
	m.mu.RLock()
	c, ok := m.caches[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caches[name]; ok {
		return c
	}
	c = newCache(name, m)
	m.caches[name] = c
	m.logger.Debug("Created cache",
		logging.String("cache", name),
		logging.String("l1_mode", m.cfg.L1.Mode.String()),
	)
	return c
}

// CacheNames returns the names of the caches created so far, sorted.
func (m *Manager) CacheNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BreakerStats exposes the state of the L2 circuit breaker.
func (m *Manager) BreakerStats() circuitbreaker.Stats {
	return m.breaker.Stats()
}

// Start subscribes to the invalidation channel and applies incoming messages
// in the background until Close is called. The same goroutine sweeps expired
// L1 entries every L1Sweep. It returns once the subscription is confirmed.
func (m *Manager) Start(ctx context.Context) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.sub != nil {
		return nil
	}

	sub := m.store.Subscribe(ctx, m.cfg.Topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return errors.ConnectionError("failed to subscribe to invalidation topic", err).
			WithContext("topic", m.cfg.Topic)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.sub = sub
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.listen(runCtx, sub.Channel(), m.done)

	m.logger.Info("Listening for cache invalidations", logging.String("topic", m.cfg.Topic))
	return nil
}

func (m *Manager) listen(ctx context.Context, ch <-chan *goredis.Message, done chan struct{}) {
	defer close(done)

	var sweep <-chan time.Time
	if m.cfg.L1Sweep > 0 {
		ticker := time.NewTicker(m.cfg.L1Sweep)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep:
			m.sweepL1()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m.handleInvalidation(msg.Payload)
		}
	}
}

func (m *Manager) sweepL1() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.caches {
		c.l1.DeleteExpired()
	}
}

func (m *Manager) handleInvalidation(payload string) {
	msg, err := decodeInvalidation(payload)
	if err != nil {
		m.logger.Warn("Dropping invalidation message", logging.Err(err))
		return
	}
	metrics.CacheInvalidations.WithLabelValues("received").Inc()

	m.mu.RLock()
	c, ok := m.caches[msg.CacheName]
	m.mu.RUnlock()
	if !ok {
		return
	}
	c.invalidate(msg.Key)
}

// publish is fire-and-forget; failures are logged only.
func (m *Manager) publish(ctx context.Context, msg InvalidationMessage) {
	msg.Origin = m.cfg.NodeID
	payload, err := msg.encode()
	if err != nil {
		m.logger.Error("Failed to encode invalidation message", err)
		return
	}

	if _, err := m.store.Publish(ctx, m.cfg.Topic, payload); err != nil {
		m.logger.Warn("Failed to publish invalidation",
			logging.String("cache", msg.CacheName),
			logging.String("key", msg.Key),
			logging.Err(err),
		)
		return
	}
	metrics.CacheInvalidations.WithLabelValues("sent").Inc()
}

// Close stops the invalidation subscriber and the L1 sweep.
func (m *Manager) Close() error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.sub == nil {
		return nil
	}

	m.cancel()
	err := m.sub.Close()
	<-m.done
	m.sub = nil
	return err
}
