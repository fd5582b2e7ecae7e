package storage

import (
	"context"
	stderrors "errors"
	"time"
)

// ErrNotFound is returned by FindByKey when no entry is stored under the key.
var ErrNotFound = stderrors.New("cache entry not found")

// CacheEntry is one persisted key/value pair.
type CacheEntry struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ExpireAt   *time.Time `json:"expireAt,omitempty"` // nil means the entry never expires
	TTLSeconds *int64     `json:"ttlSeconds,omitempty"`
	IsExpired  bool       `json:"isExpired"`
}

// HasExpired reports whether the entry's expiry lies before now.
func (e *CacheEntry) HasExpired(now time.Time) bool {
	return e.ExpireAt != nil && now.After(*e.ExpireAt)
}

// Repository is the persistence contract used by the hybrid cache.
type Repository interface {
	// FindByKey returns ErrNotFound when the key is absent. Expired rows are
	// still returned; callers decide what to do with them.
	FindByKey(ctx context.Context, key string) (*CacheEntry, error)
	// Save inserts the entry or updates the row with the same key.
	Save(ctx context.Context, entry *CacheEntry) (*CacheEntry, error)
	// DeleteByKey reports whether a row existed.
	DeleteByKey(ctx context.Context, key string) (bool, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	CountExpiredEntries(ctx context.Context) (int64, error)
	// DeleteExpiredEntries removes every row whose expiry has passed and
	// returns how many were removed.
	DeleteExpiredEntries(ctx context.Context) (int64, error)

	Health() error
	Close() error
}

// StorageConfig is implemented by each adapter's configuration.
type StorageConfig interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}

// StorageFactory builds a Repository from an adapter configuration.
type StorageFactory interface {
	Create(config StorageConfig) (Repository, error)
	GetType() string
}
