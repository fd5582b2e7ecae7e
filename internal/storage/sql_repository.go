package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the differences between the SQL engines we support.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	NumberedPlaceholders bool
}

var (
	SQLiteDialect   = Dialect{Name: "sqlite"}
	PostgresDialect = Dialect{Name: "postgres", NumberedPlaceholders: true}
)

func (d Dialect) rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cache_entries (
		cache_key   VARCHAR(512) PRIMARY KEY,
		cache_value TEXT NOT NULL,
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL,
		expire_at   BIGINT,
		ttl_seconds BIGINT,
		is_expired  BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_expire_at ON cache_entries (expire_at)`,
}

const (
	selectEntrySQL = `SELECT cache_key, cache_value, created_at, updated_at, expire_at, ttl_seconds, is_expired
		FROM cache_entries WHERE cache_key = ?`
	upsertEntrySQL = `INSERT INTO cache_entries (cache_key, cache_value, created_at, updated_at, expire_at, ttl_seconds, is_expired)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			cache_value = excluded.cache_value,
			updated_at  = excluded.updated_at,
			expire_at   = excluded.expire_at,
			ttl_seconds = excluded.ttl_seconds,
			is_expired  = excluded.is_expired`
	deleteEntrySQL   = `DELETE FROM cache_entries WHERE cache_key = ?`
	deleteAllSQL     = `DELETE FROM cache_entries`
	countSQL         = `SELECT COUNT(*) FROM cache_entries`
	countExpiredSQL  = `SELECT COUNT(*) FROM cache_entries WHERE expire_at IS NOT NULL AND expire_at < ?`
	deleteExpiredSQL = `DELETE FROM cache_entries WHERE expire_at IS NOT NULL AND expire_at < ?`
)

// SQLRepository implements Repository over database/sql. Timestamps are
// stored as Unix milliseconds so the same statements run on every dialect.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLRepository wraps db and creates the schema if needed.
func NewSQLRepository(db *sql.DB, dialect Dialect) (*SQLRepository, error) {
	r := &SQLRepository{db: db, dialect: dialect, now: time.Now}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate %s database: %w", dialect.Name, err)
	}
	return r, nil
}

func (r *SQLRepository) migrate() error {
	for _, q := range schema {
		if _, err := r.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying handle.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLRepository) FindByKey(ctx context.Context, key string) (*CacheEntry, error) {
	var (
		entry             CacheEntry
		created, updated  int64
		expireAt, ttlSecs sql.NullInt64
	)

	err := r.db.QueryRowContext(ctx, r.dialect.rebind(selectEntrySQL), key).Scan(
		&entry.Key, &entry.Value, &created, &updated, &expireAt, &ttlSecs, &entry.IsExpired,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cache entry %q: %w", key, err)
	}

	entry.CreatedAt = time.UnixMilli(created)
	entry.UpdatedAt = time.UnixMilli(updated)
	if expireAt.Valid {
		t := time.UnixMilli(expireAt.Int64)
		entry.ExpireAt = &t
	}
	if ttlSecs.Valid {
		v := ttlSecs.Int64
		entry.TTLSeconds = &v
	}

	return &entry, nil
}

func (r *SQLRepository) Save(ctx context.Context, entry *CacheEntry) (*CacheEntry, error) {
	if entry == nil || entry.Key == "" {
		return nil, fmt.Errorf("cache entry key is required")
	}

	now := r.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}

	var expireAt, ttlSecs sql.NullInt64
	if entry.ExpireAt != nil {
		expireAt = sql.NullInt64{Int64: entry.ExpireAt.UnixMilli(), Valid: true}
	}
	if entry.TTLSeconds != nil {
		ttlSecs = sql.NullInt64{Int64: *entry.TTLSeconds, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.dialect.rebind(upsertEntrySQL),
		entry.Key, entry.Value,
		entry.CreatedAt.UnixMilli(), entry.UpdatedAt.UnixMilli(),
		expireAt, ttlSecs, entry.IsExpired,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save cache entry %q: %w", entry.Key, err)
	}
	return entry, nil
}

func (r *SQLRepository) DeleteByKey(ctx context.Context, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(deleteEntrySQL), key)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, deleteAllSQL); err != nil {
		return fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return nil
}

func (r *SQLRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

func (r *SQLRepository) CountExpiredEntries(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(countExpiredSQL), r.now().UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired cache entries: %w", err)
	}
	return n, nil
}

func (r *SQLRepository) DeleteExpiredEntries(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(deleteExpiredSQL), r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLRepository) Health() error {
	return r.db.Ping()
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var _ Repository = (*SQLRepository)(nil)
