package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cache-service/internal/common/errors"
)

// Registry maps a storage type name to the factory that builds its
// Repository. Adapters register themselves from init.
type Registry struct {
	factories map[string]StorageFactory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]StorageFactory),
	}
}

// Register adds factory under storageType. Registering a type twice panics,
// since it means two adapters claim the same name.
func (r *Registry) Register(storageType string, factory StorageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.factories[storageType]; dup {
		panic(fmt.Sprintf("storage: type %q registered twice", storageType))
	}
	r.factories[storageType] = factory
}

// Create validates config and builds a Repository of storageType.
func (r *Registry) Create(storageType string, config StorageConfig) (Repository, error) {
	r.mu.RLock()
	factory, exists := r.factories[storageType]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.ConfigError(fmt.Sprintf("storage type %q not registered (available: %s)",
			storageType, strings.Join(r.GetAvailableTypes(), ", ")))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return factory.Create(config)
}

func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storageType := range r.factories {
		types = append(types, storageType)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) IsRegistered(storageType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[storageType]
	return exists
}

// DefaultRegistry holds the adapters linked into the binary.
var DefaultRegistry = NewRegistry()

func Register(storageType string, factory StorageFactory) {
	DefaultRegistry.Register(storageType, factory)
}

func Create(storageType string, config StorageConfig) (Repository, error) {
	return DefaultRegistry.Create(storageType, config)
}

func GetAvailableTypes() []string {
	return DefaultRegistry.GetAvailableTypes()
}
