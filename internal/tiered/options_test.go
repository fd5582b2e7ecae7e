package tiered

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cache-service/internal/config"
)

func TestL1Policy(t *testing.T) {
	manual := L1Policy{
		Mode:  L1Manual,
		Names: map[string]struct{}{"users": {}},
		Keys:  map[string]struct{}{"orders:42": {}},
	}

	tests := []struct {
		name   string
		policy L1Policy
		cache  string
		key    string
		want   bool
	}{
		{"disabled", L1Policy{}, "users", "1", false},
		{"all open", L1Policy{Mode: L1AllOpen}, "anything", "1", true},
		{"manual by name", manual, "users", "1", true},
		{"manual by key", manual, "orders", "42", true},
		{"manual other key", manual, "orders", "43", false},
		{"manual other name", manual, "products", "42", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.open(tt.cache, tt.key))
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := &config.Config{
		TieredDefaultTTL:            time.Minute,
		TieredPenetrationTTL:        30 * time.Second,
		TieredL1TTL:                 time.Second,
		TieredL1Mode:                config.L1ModeManual,
		TieredL1CacheNames:          []string{"users"},
		TieredL1Keys:                []string{"orders:1"},
		TieredPenetrationCacheNames: []string{"users"},
		TieredPenetrationKeys:       []string{"orders:2"},
		TieredCacheTTLs:             map[string]time.Duration{"orders": time.Hour},
		TieredNullDisallowed:        []string{"orders"},
		InvalidationTopic:           "topic",
		NodeID:                      "node-1",
	}

	c := NewConfig(cfg)

	assert.Equal(t, L1Manual, c.L1.Mode)
	assert.True(t, c.L1.open("users", "x"))
	assert.True(t, c.L1.open("orders", "1"))
	assert.Equal(t, time.Hour, c.ttlFor("orders"))
	assert.Equal(t, time.Minute, c.ttlFor("users"))
	assert.True(t, c.penetrationFor("users", "x"))
	assert.True(t, c.penetrationFor("orders", "2"))
	assert.False(t, c.penetrationFor("orders", "3"))
	assert.False(t, c.allowNull("orders"))
	assert.True(t, c.allowNull("users"))
	assert.Equal(t, "topic", c.Topic)
	assert.Equal(t, "node-1", c.NodeID)
	assert.Equal(t, "manual", c.L1.Mode.String())
}

func TestTenantFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, DefaultTenant, TenantFromContext(ctx))
	assert.Equal(t, DefaultTenant, TenantFromContext(WithTenant(ctx, "")))
	assert.Equal(t, "acme", TenantFromContext(WithTenant(ctx, "acme")))
}

func TestStripedMutex(t *testing.T) {
	s := newStripedMutex(0)
	assert.Len(t, s.stripes, defaultStripes)
	assert.Same(t, s.forKey("a"), s.forKey("a"))
}

func TestDecodeInvalidation(t *testing.T) {
	msg, err := decodeInvalidation(`{"cacheName":"users","key":"cache:users:default:1"}`)
	assert.NoError(t, err)
	assert.Equal(t, "users", msg.CacheName)
	assert.Equal(t, "cache:users:default:1", msg.Key)

	_, err = decodeInvalidation(`{"key":"x"}`)
	assert.Error(t, err)
	_, err = decodeInvalidation(`not json`)
	assert.Error(t, err)
}
