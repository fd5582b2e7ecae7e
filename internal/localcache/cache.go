// Package localcache implements a bounded, TTL-aware in-process key/value
// store with hit/miss accounting.
//
// When the cache is full, Put evicts the entry with the lowest recorded hit
// count before inserting. New entries start at zero hits, so under sustained
// pressure the most recently inserted, never-read entry is the next victim.
// This is not LRU.
//
// Expired entries are dropped lazily on read and by a background sweep that
// runs on a fixed interval after an initial delay.
package localcache

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxSize is the capacity used when none is configured.
	DefaultMaxSize = 10000
	// DefaultSweepDelay is the wait before the first background sweep.
	DefaultSweepDelay = 300 * time.Second
	// DefaultSweepInterval is the period between background sweeps.
	DefaultSweepInterval = 300 * time.Second
)

type item[V any] struct {
	value    V
	expireAt time.Time // zero means the item never expires
	hits     atomic.Int64
}

func (i *item[V]) expired(now time.Time) bool {
	return !i.expireAt.IsZero() && now.After(i.expireAt)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// Cache is a bounded TTL cache safe for concurrent use. None of its methods
// return errors; it is a best-effort structure.
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]*item[V]
	maxSize int

	hits   atomic.Uint64
	misses atomic.Uint64

	now           func() time.Time
	sweepDelay    time.Duration
	sweepInterval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	maxSize       int
	sweepDelay    time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

// WithMaxSize bounds the number of entries. Values below one are ignored.
func WithMaxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithSweepInterval sets the background sweep period. Zero disables the sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithSweepDelay sets the wait before the first sweep.
func WithSweepDelay(d time.Duration) Option {
	return func(o *options) { o.sweepDelay = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache and starts its background sweep.
func New[V any](opts ...Option) *Cache[V] {
	o := options{
		maxSize:       DefaultMaxSize,
		sweepDelay:    DefaultSweepDelay,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[V]{
		items:         make(map[string]*item[V]),
		maxSize:       o.maxSize,
		now:           o.now,
		sweepDelay:    o.sweepDelay,
		sweepInterval: o.sweepInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	if c.sweepInterval > 0 {
		go c.sweepLoop()
	} else {
		close(c.done)
	}

	return c
}

// Put stores value under key. A zero expireAt means the entry never expires.
// Replacing an existing key resets its hit count.
func (c *Cache[V]) Put(key string, value V, expireAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictLeastHit()
	}
	c.items[key] = &item[V]{value: value, expireAt: expireAt}
}

// Get returns the value for key. Absent and expired keys count as misses;
// expired ones are removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	if it.expired(c.now()) {
		c.removeIfSame(key, it)
		c.misses.Add(1)
		return zero, false
	}

	it.hits.Add(1)
	c.hits.Add(1)
	return it.value, true
}

// ContainsKey reports whether key holds an unexpired entry without touching
// the hit or miss counters.
func (c *Cache[V]) ContainsKey(key string) bool {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return false
	}
	if it.expired(c.now()) {
		c.removeIfSame(key, it)
		return false
	}
	return true
}

// Remove deletes key if present.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Clear drops every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*item[V])
	c.mu.Unlock()
}

// Size returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns the current size and hit/miss counters.
func (c *Cache[V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	return Stats{
		Size:    c.Size(),
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep and waits for it to exit. It is safe to
// call more than once.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Cache[V]) removeIfSame(key string, it *item[V]) {
	c.mu.Lock()
	if cur, ok := c.items[key]; ok && cur == it {
		delete(c.items, key)
	}
	c.mu.Unlock()
}

// evictLeastHit must be called with mu held. Ties go to whichever candidate
// map iteration yields first.
func (c *Cache[V]) evictLeastHit() {
	var (
		victim string
		lowest int64 = -1
	)
	for key, it := range c.items {
		if h := it.hits.Load(); lowest < 0 || h < lowest {
			victim, lowest = key, h
		}
	}
	if lowest >= 0 {
		delete(c.items, victim)
	}
}

func (c *Cache[V]) sweepLoop() {
	defer close(c.done)

	timer := time.NewTimer(c.sweepDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-c.stop:
		return
	}
	c.Sweep()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}
