package locks

import (
	"cache-service/internal/common/logging"
	"cache-service/internal/redis"
)

// NewDistributedLockManager wires a lease Manager to the shared store.
//
// Parameters:
//   - redisClient: A connected Redis client instance for distributed coordination
//   - prefix: Key prefix for lock keys; empty uses DefaultKeyPrefix
//   - logger: Optional logger; nil uses the global logger
//
// Returns:
//   - *DistributedLock: The primitive, for callers that manage request ids themselves
//   - *Manager: A lease manager backed by the same primitive
func NewDistributedLockManager(redisClient *redis.Client, prefix string, logger logging.Logger) (*DistributedLock, *Manager) {
	opts := []LockOption{WithLogger(logger)}
	if prefix != "" {
		opts = append(opts, WithKeyPrefix(prefix))
	}

	lock := NewDistributedLock(redisClient, opts...)
	return lock, NewManager(lock, logger)
}
