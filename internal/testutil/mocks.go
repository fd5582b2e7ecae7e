package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cache-service/internal/storage"
)

// MockRepository implements storage.Repository with testify/mock.
type MockRepository struct {
	mock.Mock
}

var _ storage.Repository = (*MockRepository)(nil)

func (m *MockRepository) FindByKey(ctx context.Context, key string) (*storage.CacheEntry, error) {
	args := m.Called(ctx, key)
	entry, _ := args.Get(0).(*storage.CacheEntry)
	return entry, args.Error(1)
}

func (m *MockRepository) Save(ctx context.Context, entry *storage.CacheEntry) (*storage.CacheEntry, error) {
	args := m.Called(ctx, entry)
	saved, _ := args.Get(0).(*storage.CacheEntry)
	return saved, args.Error(1)
}

func (m *MockRepository) DeleteByKey(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DeleteAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) CountExpiredEntries(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) DeleteExpiredEntries(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) Health() error {
	return m.Called().Error(0)
}

func (m *MockRepository) Close() error {
	return m.Called().Error(0)
}
