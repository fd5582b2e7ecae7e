package tiered

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"cache-service/internal/common/errors"
	"cache-service/internal/redis"
	"cache-service/internal/testutil"
)

func newNode(t *testing.T, mr *miniredis.Miniredis, cfg Config) *Manager {
	t.Helper()
	client, err := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	m := NewManager(client, cfg, nil)
	t.Cleanup(func() { m.Close() })
	return m
}

func allOpen() Config {
	cfg := DefaultConfig()
	cfg.L1 = L1Policy{Mode: L1AllOpen}
	return cfg
}

func TestCache_StoreKeyIncludesTenant(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	users := NewManager(client, DefaultConfig(), nil).Cache("users")

	require.NoError(t, users.Put(ctx, "42", []byte("alice")))
	require.NoError(t, users.Put(WithTenant(ctx, "acme"), "42", []byte("bob")))

	got, err := mr.Get("cache:users:default:42")
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
	got, err = mr.Get("cache:users:acme:42")
	require.NoError(t, err)
	assert.Equal(t, "bob", got)

	v, ok := users.Lookup(WithTenant(ctx, "acme"), "42")
	assert.True(t, ok)
	assert.Equal(t, []byte("bob"), v)
}

func TestCache_L2OnlyByDefault(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := newNode(t, mr, DefaultConfig()).Cache("users")
	b := newNode(t, mr, DefaultConfig()).Cache("users")

	require.NoError(t, a.Put(ctx, "1", []byte("v1")))
	v, ok := b.Lookup(ctx, "1")
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, b.Put(ctx, "1", []byte("v2")))
	v, _ = a.Lookup(ctx, "1")
	assert.Equal(t, []byte("v2"), v)

	assert.False(t, a.L1Opened())
	assert.Zero(t, a.l1.ItemCount())
}

func TestCache_L1ServesWithoutL2(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	users := NewManager(client, allOpen(), nil).Cache("users")

	require.NoError(t, users.Put(ctx, "1", []byte("v1")))
	mr.Del("cache:users:default:1")

	v, ok := users.Lookup(ctx, "1")
	assert.True(t, ok, "L1 hit must not consult L2")
	assert.Equal(t, []byte("v1"), v)
	assert.True(t, users.L1Opened())

	users.ClearLocal(ctx, "1")
	_, ok = users.Lookup(ctx, "1")
	assert.False(t, ok)
}

func TestCache_L2HitPopulatesL1(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	users := NewManager(client, allOpen(), nil).Cache("users")

	require.NoError(t, mr.Set("cache:users:default:7", "from-l2"))

	v, ok := users.Lookup(ctx, "7")
	require.True(t, ok)
	assert.Equal(t, []byte("from-l2"), v)

	_, cached := users.l1.Get("cache:users:default:7")
	assert.True(t, cached)
}

func TestCache_CrossInstanceInvalidation(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	nodeX := newNode(t, mr, allOpen())
	nodeY := newNode(t, mr, allOpen())
	require.NoError(t, nodeX.Start(ctx))
	require.NoError(t, nodeY.Start(ctx))

	x := nodeX.Cache("users")
	y := nodeY.Cache("users")

	require.NoError(t, x.Put(ctx, "k", []byte("v1")))
	v, ok := x.Lookup(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, y.Put(ctx, "k", []byte("v2")))

	assert.Eventually(t, func() bool {
		v, ok := x.Lookup(ctx, "k")
		return ok && string(v) == "v2"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCache_ClearInvalidatesOtherNodes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	nodeX := newNode(t, mr, allOpen())
	nodeY := newNode(t, mr, allOpen())
	require.NoError(t, nodeX.Start(ctx))
	require.NoError(t, nodeY.Start(ctx))

	x := nodeX.Cache("users")
	y := nodeY.Cache("users")

	require.NoError(t, x.Put(ctx, "a", []byte("1")))
	_, ok := y.Lookup(ctx, "a")
	require.True(t, ok)

	require.NoError(t, x.Clear(ctx))

	assert.Eventually(t, func() bool {
		return y.l1.ItemCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	_, ok = y.Lookup(ctx, "a")
	assert.False(t, ok)
}

func TestCache_PenetrationProtection(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	cfg := DefaultConfig()
	cfg.DefaultTTL = time.Hour
	cfg.PenetrationNames = map[string]struct{}{"users": {}}
	users := NewManager(client, cfg, nil).Cache("users")

	var calls atomic.Int32
	loader := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	}

	for i := 0; i < 2; i++ {
		v, err := users.Get(ctx, "ghost", loader)
		require.NoError(t, err)
		assert.Nil(t, v)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 5*time.Minute, mr.TTL("cache:users:default:ghost"))

	mr.FastForward(5*time.Minute + time.Second)

	_, err := users.Get(ctx, "ghost", loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_EmptyValueWithoutPenetrationUsesCacheTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	cfg := DefaultConfig()
	cfg.TTLs = map[string]time.Duration{"orders": 30 * time.Second}
	orders := NewManager(client, cfg, nil).Cache("orders")

	require.NoError(t, orders.Put(ctx, "none", nil))

	assert.Equal(t, 30*time.Second, mr.TTL("cache:orders:default:none"))
	v, ok := orders.Lookup(ctx, "none")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestCache_NullDisallowedEvicts(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	cfg := DefaultConfig()
	cfg.NullDisallowed = map[string]struct{}{"orders": {}}
	orders := NewManager(client, cfg, nil).Cache("orders")

	require.NoError(t, orders.Put(ctx, "1", []byte("order")))
	require.NoError(t, orders.Put(ctx, "1", []byte{}))

	assert.False(t, mr.Exists("cache:orders:default:1"))
	_, ok := orders.Lookup(ctx, "1")
	assert.False(t, ok)
}

func TestCache_PerCacheTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	cfg := DefaultConfig()
	cfg.DefaultTTL = time.Hour
	cfg.TTLs = map[string]time.Duration{"sessions": 10 * time.Second}
	m := NewManager(client, cfg, nil)

	require.NoError(t, m.Cache("sessions").Put(ctx, "s", []byte("x")))
	require.NoError(t, m.Cache("users").Put(ctx, "u", []byte("x")))

	assert.Equal(t, 10*time.Second, mr.TTL("cache:sessions:default:s"))
	assert.Equal(t, time.Hour, mr.TTL("cache:users:default:u"))

	require.NoError(t, NewManager(client, DefaultConfig(), nil).Cache("forever").Put(ctx, "f", []byte("x")))
	assert.Zero(t, mr.TTL("cache:forever:default:f"))
}

func TestCache_GetLoadsOncePerKey(t *testing.T) {
	ctx := context.Background()
	_, client := testutil.NewRedis(t)
	users := NewManager(client, DefaultConfig(), nil).Cache("users")

	var calls atomic.Int32
	loader := func(context.Context) ([]byte, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return []byte("loaded"), nil
	}

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			v, err := users.Get(ctx, "hot", loader)
			if err == nil && string(v) != "loaded" {
				t.Errorf("unexpected value %q", v)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_GetLoaderError(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	users := NewManager(client, DefaultConfig(), nil).Cache("users")

	_, err := users.Get(ctx, "k", func(context.Context) ([]byte, error) {
		return nil, testutil.ErrTestFailure
	})
	assert.ErrorIs(t, err, testutil.ErrTestFailure)
	assert.False(t, mr.Exists("cache:users:default:k"))

	// The stripe was released, so a later load proceeds.
	v, err := users.Get(ctx, "k", func(context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), v)
}

func TestCache_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	_, client := testutil.NewRedis(t)
	users := NewManager(client, allOpen(), nil).Cache("users")

	existing, stored, err := users.PutIfAbsent(ctx, "k", []byte("first"))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Nil(t, existing)

	existing, stored, err = users.PutIfAbsent(ctx, "k", []byte("second"))
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, []byte("first"), existing)

	v, _ := users.Lookup(ctx, "k")
	assert.Equal(t, []byte("first"), v)
}

func TestCache_EvictAndClear(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	users := NewManager(client, allOpen(), nil).Cache("users")
	acme := WithTenant(ctx, "acme")

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, users.Put(ctx, key, []byte(key)))
	}
	require.NoError(t, users.Put(acme, "a", []byte("tenant")))
	require.NoError(t, mr.Set("cache:orders:default:a", "other cache"))

	require.NoError(t, users.Evict(ctx, "a", "b"))
	_, ok := users.Lookup(ctx, "a")
	assert.False(t, ok)
	_, ok = users.Lookup(ctx, "c")
	assert.True(t, ok)
	assert.NoError(t, users.Evict(ctx))

	require.NoError(t, users.Clear(ctx))
	assert.False(t, mr.Exists("cache:users:default:c"))
	assert.True(t, mr.Exists("cache:users:acme:a"), "clear is scoped to the tenant")
	assert.True(t, mr.Exists("cache:orders:default:a"), "clear is scoped to the cache")
	assert.Zero(t, users.l1.ItemCount())
}

func TestCache_L2Failure(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	users := NewManager(client, DefaultConfig(), nil).Cache("users")

	require.NoError(t, users.Put(ctx, "k", []byte("v")))
	mr.Close()

	_, ok := users.Lookup(ctx, "k")
	assert.False(t, ok, "unreachable L2 reads as a miss")
	assert.Error(t, users.Put(ctx, "k", []byte("v2")))
	assert.Error(t, users.Evict(ctx, "k"))

	v, err := users.Get(ctx, "k", func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), v)
}

func TestCache_BreakerOpensOnRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	m := NewManager(client, DefaultConfig(), nil)
	users := m.Cache("users")
	mr.Close()

	for i := 0; i < DefaultConfig().Breaker.MaxFailures; i++ {
		users.Lookup(ctx, "k")
	}
	assert.Equal(t, "open", m.BreakerStats().State)

	err := users.Put(ctx, "k", []byte("v"))
	assert.Error(t, err)
}

func TestManager_CacheRegistry(t *testing.T) {
	_, client := testutil.NewRedis(t)
	m := NewManager(client, DefaultConfig(), nil)

	var wg sync.WaitGroup
	caches := make([]*Cache, 10)
	for i := range caches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caches[i] = m.Cache("users")
		}(i)
	}
	wg.Wait()

	for _, c := range caches {
		assert.Same(t, caches[0], c)
	}
	m.Cache("orders")
	assert.Equal(t, []string{"orders", "users"}, m.CacheNames())
	assert.Equal(t, "users", caches[0].Name())
}

func TestCache_ClearRejectsWildcardTenant(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	users := NewManager(client, DefaultConfig(), nil).Cache("users")

	require.NoError(t, users.Put(WithTenant(ctx, "acme"), "1", []byte("a")))
	require.NoError(t, users.Put(WithTenant(ctx, "globex"), "1", []byte("g")))

	for _, tenant := range []string{"*", "acm?", "[ag]*", "acme:x"} {
		err := users.Clear(WithTenant(ctx, tenant))
		require.Error(t, err, tenant)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation), tenant)
	}
	assert.True(t, mr.Exists("cache:users:acme:1"))
	assert.True(t, mr.Exists("cache:users:globex:1"))
}

func TestCache_ClearEscapesCacheName(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewRedis(t)
	m := NewManager(client, DefaultConfig(), nil)

	require.NoError(t, m.Cache("users").Put(ctx, "1", []byte("u")))
	odd := m.Cache("us?rs")
	require.NoError(t, odd.Put(ctx, "1", []byte("o")))

	require.NoError(t, odd.Clear(ctx))
	assert.False(t, mr.Exists("cache:us?rs:default:1"))
	assert.True(t, mr.Exists("cache:users:default:1"))
}

func TestValidateScope(t *testing.T) {
	for _, v := range []string{"acme", "default", "tenant-1", "a.b"} {
		assert.NoError(t, ValidateTenant(v), v)
		assert.NoError(t, ValidateName(v), v)
	}
	for _, v := range []string{"", "*", "a:b", "a?", "[x]", `a\b`} {
		assert.Error(t, ValidateTenant(v), v)
		assert.Error(t, ValidateName(v), v)
	}
}

func TestManager_LookupDoesNotCreate(t *testing.T) {
	_, client := testutil.NewRedis(t)
	m := NewManager(client, DefaultConfig(), nil)

	_, ok := m.Lookup("users")
	assert.False(t, ok)
	assert.Empty(t, m.CacheNames())

	created := m.Cache("users")
	got, ok := m.Lookup("users")
	assert.True(t, ok)
	assert.Same(t, created, got)
}

func TestManager_CachesStartNoGoroutines(t *testing.T) {
	_, client := testutil.NewRedis(t)
	m := NewManager(client, allOpen(), nil)

	before := runtime.NumGoroutine()
	for i := 0; i < 200; i++ {
		m.Cache(fmt.Sprintf("c%d", i))
	}
	assert.Less(t, runtime.NumGoroutine(), before+10)
}

func TestManager_SweepsExpiredL1(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := allOpen()
	cfg.L1TTL = 20 * time.Millisecond
	cfg.L1Sweep = 20 * time.Millisecond
	m := newNode(t, mr, cfg)
	require.NoError(t, m.Start(ctx))

	users := m.Cache("users")
	users.l1.Set("cache:users:default:1", []byte("v"), cfg.L1TTL)
	assert.Eventually(t, func() bool { return users.l1.ItemCount() == 0 }, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestCache_ManualKeyOpensL1ForEveryTenant(t *testing.T) {
	ctx := context.Background()
	_, client := testutil.NewRedis(t)
	cfg := DefaultConfig()
	cfg.L1 = L1Policy{Mode: L1Manual, Keys: map[string]struct{}{"users:hot": {}}}
	users := NewManager(client, cfg, nil).Cache("users")

	require.NoError(t, users.Put(ctx, "hot", []byte("a")))
	require.NoError(t, users.Put(WithTenant(ctx, "acme"), "hot", []byte("b")))
	require.NoError(t, users.Put(ctx, "cold", []byte("c")))

	assert.Equal(t, 2, users.l1.ItemCount())
	_, ok := users.l1.Get("cache:users:acme:hot")
	assert.True(t, ok)
}
