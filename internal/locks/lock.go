package locks

import (
	"context"
	"time"

	"cache-service/internal/common/logging"
	"cache-service/internal/common/validation"
	"cache-service/internal/metrics"
	"cache-service/internal/redis"
)

// DefaultKeyPrefix namespaces lock keys in the shared store.
const DefaultKeyPrefix = "lock:"

// NoExpiry is returned by GetTTL for a lock key that has no expiration.
const NoExpiry time.Duration = -1

// releaseScript deletes the lock only when it is still held by the caller.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Store is the subset of the shared store used by DistributedLock.
// *redis.Client implements it.
type Store interface {
	SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

var _ Store = (*redis.Client)(nil)

// DistributedLock is a mutual-exclusion primitive over the shared store.
// A lock is a key holding the holder's request id with a store-enforced TTL,
// so a crashed holder's lock expires on its own.
//
// Every method is fail-safe: store errors are logged and reported as a
// false or empty result, never returned. Invalid arguments short-circuit
// without a round trip.
type DistributedLock struct {
	store  Store
	prefix string
	logger logging.Logger
}

type LockOption func(*DistributedLock)

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) LockOption {
	return func(l *DistributedLock) { l.prefix = prefix }
}

func WithLogger(logger logging.Logger) LockOption {
	return func(l *DistributedLock) { l.logger = logger }
}

func NewDistributedLock(store Store, opts ...LockOption) *DistributedLock {
	l := &DistributedLock{
		store:  store,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrGlobal(l.logger, "distributed-lock")
	return l
}

// TryLock acquires lockKey for requestID with a single SET NX EX. It returns
// true only if this call created the key.
func (l *DistributedLock) TryLock(ctx context.Context, lockKey, requestID string, ttl time.Duration) bool {
	if !l.valid("try_lock", lockKey, keyArgs(lockKey).RequireString(requestID, "request id").RequirePositiveDuration(ttl, "ttl")) {
		return false
	}

	ok, err := l.store.SetNX(ctx, l.key(lockKey), requestID, ttl)
	if err != nil {
		l.fail("try_lock", lockKey, err)
		return false
	}

	metrics.LockOperations.WithLabelValues("try_lock", metrics.LockResult(ok)).Inc()
	return ok
}

// ReleaseLock deletes lockKey only if requestID still holds it. The check
// and delete run as one script on the store.
func (l *DistributedLock) ReleaseLock(ctx context.Context, lockKey, requestID string) bool {
	if !l.valid("release", lockKey, keyArgs(lockKey).RequireString(requestID, "request id")) {
		return false
	}

	res, err := l.store.Eval(ctx, releaseScript, []string{l.key(lockKey)}, requestID)
	if err != nil {
		l.fail("release", lockKey, err)
		return false
	}

	n, _ := res.(int64)
	ok := n > 0
	metrics.LockOperations.WithLabelValues("release", metrics.LockResult(ok)).Inc()
	return ok
}

// Get returns the current holder of lockKey.
func (l *DistributedLock) Get(ctx context.Context, lockKey string) (string, bool) {
	if !l.valid("get", lockKey, keyArgs(lockKey)) {
		return "", false
	}

	holder, err := l.store.Get(ctx, l.key(lockKey))
	if redis.IsNil(err) {
		return "", false
	}
	if err != nil {
		l.fail("get", lockKey, err)
		return "", false
	}
	return holder, true
}

func (l *DistributedLock) Exists(ctx context.Context, lockKey string) bool {
	if !l.valid("exists", lockKey, keyArgs(lockKey)) {
		return false
	}

	exists, err := l.store.Exists(ctx, l.key(lockKey))
	if err != nil {
		l.fail("exists", lockKey, err)
		return false
	}
	return exists
}

// GetTTL returns the remaining lifetime of lockKey. The boolean is false when
// the lock does not exist or the store could not be reached; a lock without
// expiration reports NoExpiry.
func (l *DistributedLock) GetTTL(ctx context.Context, lockKey string) (time.Duration, bool) {
	if !l.valid("ttl", lockKey, keyArgs(lockKey)) {
		return 0, false
	}

	ttl, err := l.store.TTL(ctx, l.key(lockKey))
	if err != nil {
		l.fail("ttl", lockKey, err)
		return 0, false
	}

	// go-redis passes the -1/-2 replies through as raw nanoseconds.
	switch ttl {
	case -2:
		return 0, false
	case -1:
		return NoExpiry, true
	}
	return ttl, true
}

// ExtendLock resets the TTL of lockKey if requestID still holds it.
//
// This is best-effort: the holder check and the EXPIRE are two round trips,
// so if the lock expires and another holder acquires it in between, the new
// holder's TTL is extended instead.
func (l *DistributedLock) ExtendLock(ctx context.Context, lockKey, requestID string, ttl time.Duration) bool {
	if !l.valid("extend", lockKey, keyArgs(lockKey).RequireString(requestID, "request id").RequirePositiveDuration(ttl, "ttl")) {
		return false
	}

	holder, ok := l.Get(ctx, lockKey)
	if !ok || holder != requestID {
		metrics.LockOperations.WithLabelValues("extend", metrics.ResultFail).Inc()
		return false
	}

	extended, err := l.store.Expire(ctx, l.key(lockKey), ttl)
	if err != nil {
		l.fail("extend", lockKey, err)
		return false
	}

	metrics.LockOperations.WithLabelValues("extend", metrics.LockResult(extended)).Inc()
	return extended
}

func (l *DistributedLock) key(lockKey string) string {
	return l.prefix + lockKey
}

func keyArgs(lockKey string) *validation.Validator {
	return validation.NewValidator().RequireString(lockKey, "lock key")
}

func (l *DistributedLock) valid(op, lockKey string, args *validation.Validator) bool {
	if err := args.Error(); err != nil {
		l.logger.Debug("Rejected lock call",
			logging.String("op", op),
			logging.String("lock_key", lockKey),
			logging.Err(err),
		)
		return false
	}
	return true
}

func (l *DistributedLock) fail(op, lockKey string, err error) {
	l.logger.Warn("Distributed lock operation failed",
		logging.String("op", op),
		logging.String("lock_key", lockKey),
		logging.Err(err),
	)
	metrics.LockOperations.WithLabelValues(op, metrics.ResultError).Inc()
}
