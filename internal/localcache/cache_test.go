package localcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, opts ...Option) (*Cache[string], *fakeClock) {
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now), WithSweepInterval(0)}, opts...)
	c := New[string](opts...)
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_PutGet(t *testing.T) {
	c, _ := newTestCache(t)

	c.Put("a", "1", time.Time{})

	value, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", value)
	assert.True(t, c.ContainsKey("a"))

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.False(t, c.ContainsKey("missing"))
}

func TestCache_ExpiredOnRead(t *testing.T) {
	c, clock := newTestCache(t)

	c.Put("a", "1", clock.Now().Add(time.Second))
	c.Put("forever", "2", time.Time{})

	_, ok := c.Get("a")
	require.True(t, ok)

	clock.Advance(2 * time.Second)

	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Size(), "expired entry is removed lazily on read")

	value, ok := c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, "2", value)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCache_ContainsKeyDropsExpired(t *testing.T) {
	c, clock := newTestCache(t)

	c.Put("a", "1", clock.Now().Add(time.Second))
	clock.Advance(time.Minute)

	assert.False(t, c.ContainsKey("a"))
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, uint64(0), c.Stats().Misses, "ContainsKey does not count misses")
}

func TestCache_EvictsLowestHitCount(t *testing.T) {
	c, _ := newTestCache(t, WithMaxSize(3))

	c.Put("a", "1", time.Time{})
	c.Put("b", "2", time.Time{})
	c.Put("c", "3", time.Time{})

	// a: 3 hits, b: 0 hits, c: 1 hit
	for i := 0; i < 3; i++ {
		c.Get("a")
	}
	c.Get("c")

	c.Put("d", "4", time.Time{})

	assert.Equal(t, 3, c.Size())
	assert.True(t, c.ContainsKey("a"))
	assert.False(t, c.ContainsKey("b"), "entry with the lowest hit count is evicted")
	assert.True(t, c.ContainsKey("c"))
	assert.True(t, c.ContainsKey("d"))
}

func TestCache_NewcomerIsNextVictim(t *testing.T) {
	c, _ := newTestCache(t, WithMaxSize(2))

	c.Put("hot", "1", time.Time{})
	c.Get("hot")
	c.Put("new1", "2", time.Time{})
	c.Put("new2", "3", time.Time{})

	assert.True(t, c.ContainsKey("hot"))
	assert.False(t, c.ContainsKey("new1"))
	assert.True(t, c.ContainsKey("new2"))
}

func TestCache_ReplaceDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(t, WithMaxSize(2))

	c.Put("a", "1", time.Time{})
	c.Put("b", "2", time.Time{})
	c.Put("a", "updated", time.Time{})

	assert.Equal(t, 2, c.Size())
	value, _ := c.Get("a")
	assert.Equal(t, "updated", value)
	assert.True(t, c.ContainsKey("b"))
}

func TestCache_SizeNeverExceedsCapacity(t *testing.T) {
	c, _ := newTestCache(t, WithMaxSize(10))

	for i := 0; i < 100; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v", time.Time{})
		assert.LessOrEqual(t, c.Size(), 10)
	}
}

func TestCache_RemoveAndClear(t *testing.T) {
	c, _ := newTestCache(t)

	c.Put("a", "1", time.Time{})
	c.Put("b", "2", time.Time{})

	c.Remove("a")
	c.Remove("a")
	assert.False(t, c.ContainsKey("a"))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(t)

	c.Put("short", "1", clock.Now().Add(time.Second))
	c.Put("long", "2", clock.Now().Add(time.Hour))
	c.Put("forever", "3", time.Time{})

	clock.Advance(time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 2, c.Size())
}

func TestCache_BackgroundSweep(t *testing.T) {
	c := New[string](
		WithSweepDelay(10*time.Millisecond),
		WithSweepInterval(10*time.Millisecond),
	)
	defer c.Close()

	c.Put("a", "1", time.Now().Add(5*time.Millisecond))

	assert.Eventually(t, func() bool {
		return c.Size() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New[string](WithSweepInterval(time.Hour))
	c.Close()
	c.Close()
}

func TestCache_Stats(t *testing.T) {
	c, _ := newTestCache(t)

	assert.Equal(t, 0.0, c.Stats().HitRate)

	c.Put("a", "1", time.Time{})
	c.Get("a")
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(3), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.75, stats.HitRate, 1e-9)
}

func TestCache_Concurrent(t *testing.T) {
	c, _ := newTestCache(t, WithMaxSize(50))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%80)
				c.Put(key, "v", time.Time{})
				c.Get(key)
				c.ContainsKey(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 50)
	stats := c.Stats()
	assert.Equal(t, uint64(8*500), stats.Hits+stats.Misses)
}
