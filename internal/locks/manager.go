// Package locks provides distributed locking over the shared store.
//
// DistributedLock is the primitive: TryLock/ReleaseLock keyed by a caller
// supplied request id, with TTL-based auto-expiry. Manager builds leases on
// top of it: it generates the request id, renews the lock in the background
// and releases it when the holder is done.
//
// Example usage:
//
//	redisClient, err := redis.NewClient(&redis.Config{
//		Address: "localhost:6379",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	manager := locks.NewManager(locks.NewDistributedLock(redisClient))
//	defer manager.Close()
//
//	lock, err := manager.AcquireLock(ctx, "cleanup", 30*time.Second)
//	if err != nil {
//		return
//	}
//	defer lock.Release(ctx)
package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"cache-service/internal/common/logging"
)

// ErrLockHeld is returned by AcquireLock when another holder owns the key.
var ErrLockHeld = errors.New("lock already held by another process")

// Primitive is the lock contract Manager builds on. *DistributedLock
// implements it.
type Primitive interface {
	TryLock(ctx context.Context, lockKey, requestID string, ttl time.Duration) bool
	ReleaseLock(ctx context.Context, lockKey, requestID string) bool
	ExtendLock(ctx context.Context, lockKey, requestID string, ttl time.Duration) bool
}

// Manager hands out renewing leases on distributed locks.
//
// The manager keeps local state for every lease it granted and runs one
// goroutine per lease that extends the lock at 1/3 of its expiration. If an
// extension fails the lease is dropped locally, since the lock may already
// belong to someone else.
//
// Manager is safe for concurrent use by multiple goroutines.
type Manager struct {
	primitive  Primitive
	localLocks map[string]*LocalLock
	mutex      sync.RWMutex
	logger     logging.Logger
}

// LocalLock is a lease acquired through Manager.AcquireLock.
type LocalLock struct {
	manager    *Manager
	key        string
	token      string
	expiration time.Duration
	acquired   time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Lock defines the interface for leases handed out by Manager.
type Lock interface {
	// Key returns the lock key.
	Key() string

	// Token returns the request id identifying this holder in the store.
	Token() string

	// Extend changes the expiration used by future renewals.
	Extend(ctx context.Context, expiration time.Duration) error

	// Release stops renewal and deletes the lock in the store if this
	// holder still owns it. Calling Release more than once is safe.
	Release(ctx context.Context) error

	// IsHeld reports whether the lease is still active locally. It does not
	// query the store.
	IsHeld() bool
}

// NewManager creates a lease manager on top of primitive.
func NewManager(primitive Primitive, logger ...logging.Logger) *Manager {
	var l logging.Logger
	if len(logger) > 0 {
		l = logger[0]
	}
	return &Manager{
		primitive:  primitive,
		localLocks: make(map[string]*LocalLock),
		logger:     logging.OrGlobal(l, "lock-manager"),
	}
}

// AcquireLock tries once to take key for expiration and, on success, starts
// renewing it in the background. It returns ErrLockHeld when the key is
// owned by someone else (or the store could not be reached).
func (m *Manager) AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	token := uuid.NewString()
	if !m.primitive.TryLock(ctx, key, token, expiration) {
		return nil, ErrLockHeld
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &LocalLock{
		manager:    m,
		key:        key,
		token:      token,
		expiration: expiration,
		acquired:   time.Now(),
		ctx:        lockCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	m.mutex.Lock()
	m.localLocks[key] = lock
	m.mutex.Unlock()

	go m.renewLock(lock)

	return lock, nil
}

// WithLock runs fn while holding key. fn's context is cancelled if the lease
// is lost. ErrLockHeld is returned without running fn when the key is taken.
func (m *Manager) WithLock(ctx context.Context, key string, expiration time.Duration, fn func(ctx context.Context) error) error {
	lock, err := m.AcquireLock(ctx, key, expiration)
	if err != nil {
		return err
	}
	defer lock.Release(context.Background())

	l := lock.(*LocalLock)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	return fn(runCtx)
}

// renewLock extends the lease at 1/3 of its expiration, minimum 100ms.
func (m *Manager) renewLock(lock *LocalLock) {
	defer close(lock.done)

	for {
		interval := lock.renewInterval()
		timer := time.NewTimer(interval)

		select {
		case <-lock.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok := m.primitive.ExtendLock(ctx, lock.key, lock.token, lock.getExpiration())
			cancel()

			if !ok {
				m.logger.Warn("Lost distributed lock", logging.String("lock_key", lock.key))
				m.forget(lock)
				lock.cancel()
				return
			}
		}
	}
}

func (m *Manager) forget(lock *LocalLock) {
	m.mutex.Lock()
	if m.localLocks[lock.key] == lock {
		delete(m.localLocks, lock.key)
	}
	m.mutex.Unlock()
}

// HeldLocks returns the keys of leases currently held by this manager.
func (m *Manager) HeldLocks() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	keys := make([]string, 0, len(m.localLocks))
	for key := range m.localLocks {
		keys = append(keys, key)
	}
	return keys
}

// Close releases every lease held by this manager.
func (m *Manager) Close() error {
	m.mutex.RLock()
	held := make([]*LocalLock, 0, len(m.localLocks))
	for _, lock := range m.localLocks {
		held = append(held, lock)
	}
	m.mutex.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, lock := range held {
		_ = lock.Release(ctx)
	}
	return nil
}

func (l *LocalLock) Key() string {
	return l.key
}

func (l *LocalLock) Token() string {
	return l.token
}

func (l *LocalLock) Extend(ctx context.Context, expiration time.Duration) error {
	if expiration <= 0 {
		return errors.New("expiration must be positive")
	}
	l.mu.Lock()
	l.expiration = expiration
	l.mu.Unlock()
	return nil
}

func (l *LocalLock) Release(ctx context.Context) error {
	if !l.IsHeld() {
		return nil
	}
	l.cancel()
	<-l.done

	l.manager.forget(l)
	if !l.manager.primitive.ReleaseLock(ctx, l.key, l.token) {
		return errors.New("lock was no longer held at release")
	}
	return nil
}

func (l *LocalLock) IsHeld() bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
		return true
	}
}

func (l *LocalLock) getExpiration() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expiration
}

func (l *LocalLock) renewInterval() time.Duration {
	interval := l.getExpiration() / 3
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return interval
}
