package testutil

import (
	"time"

	"cache-service/internal/storage"
)

// CacheEntryBuilder builds storage.CacheEntry values for tests.
type CacheEntryBuilder struct {
	entry *storage.CacheEntry
}

func NewCacheEntryBuilder(key string) *CacheEntryBuilder {
	now := time.Now()
	return &CacheEntryBuilder{
		entry: &storage.CacheEntry{
			Key:       key,
			Value:     "value-" + key,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (b *CacheEntryBuilder) WithValue(value string) *CacheEntryBuilder {
	b.entry.Value = value
	return b
}

// ExpiringIn sets the expiry relative to now; negative values give an
// already expired entry.
func (b *CacheEntryBuilder) ExpiringIn(ttl time.Duration) *CacheEntryBuilder {
	at := time.Now().Add(ttl)
	secs := int64(ttl / time.Second)
	b.entry.ExpireAt = &at
	b.entry.TTLSeconds = &secs
	return b
}

func (b *CacheEntryBuilder) Build() *storage.CacheEntry {
	return b.entry
}
