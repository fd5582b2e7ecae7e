package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cache-service/internal/common/errors"
	"cache-service/internal/hybrid"
	"cache-service/internal/localcache"
	"cache-service/internal/locks"
	"cache-service/internal/metrics"
	tu "cache-service/internal/testutil"
)

type fakeCleaner struct {
	calls     atomic.Int32
	cancelled atomic.Int32
	removed   int64
	err       error
}

func (f *fakeCleaner) CleanupExpiredEntries(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	if ctx.Err() != nil {
		f.cancelled.Add(1)
	}
	return f.removed, f.err
}

func TestCleanupJob_RunWithoutLocker(t *testing.T) {
	cleaner := &fakeCleaner{removed: 3}
	before := testutil.ToFloat64(metrics.CleanupRemoved)

	removed, ran, err := NewCleanupJob(cleaner, nil, 0, nil).Run(context.Background())

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int64(3), removed)
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.CleanupRemoved))
}

func TestCleanupJob_SkipsWhenLockHeld(t *testing.T) {
	mr, client := tu.NewRedis(t)
	_, manager := locks.NewDistributedLockManager(client, "", nil)
	require.NoError(t, mr.Set(locks.DefaultKeyPrefix+CleanupLockKey, "other-node"))

	cleaner := &fakeCleaner{removed: 1}
	skipped := testutil.ToFloat64(metrics.CleanupRuns.WithLabelValues("skipped"))

	removed, ran, err := NewCleanupJob(cleaner, manager, time.Minute, nil).Run(context.Background())

	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, removed)
	assert.Zero(t, cleaner.calls.Load())
	assert.Equal(t, skipped+1, testutil.ToFloat64(metrics.CleanupRuns.WithLabelValues("skipped")))
}

func TestCleanupJob_ReleasesLockAfterRun(t *testing.T) {
	mr, client := tu.NewRedis(t)
	_, manager := locks.NewDistributedLockManager(client, "", nil)
	job := NewCleanupJob(&fakeCleaner{}, manager, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, ran, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, ran)
	}
	assert.False(t, mr.Exists(locks.DefaultKeyPrefix+CleanupLockKey))
}

func TestCleanupJob_Failure(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.StorageError("cleanup failed", tu.ErrStoreDown)}
	failed := testutil.ToFloat64(metrics.CleanupRuns.WithLabelValues("failed"))

	_, ran, err := NewCleanupJob(cleaner, nil, time.Minute, nil).Run(context.Background())

	assert.True(t, ran)
	assert.ErrorIs(t, err, tu.ErrStoreDown)
	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.CleanupRuns.WithLabelValues("failed")))
}

func TestCleanupJob_RemovesExpiredRows(t *testing.T) {
	ctx := context.Background()
	repo := tu.NewSQLiteRepository(t)

	// Entries written an hour ago with a one second TTL are long expired.
	past := func() time.Time { return time.Now().Add(-time.Hour) }
	local := localcache.New[string](localcache.WithClock(past))
	t.Cleanup(local.Close)
	cache := hybrid.NewManager(repo, local, hybrid.WithClock(past))

	require.NoError(t, cache.Set(ctx, "old", "v", time.Second))
	require.NoError(t, cache.Set(ctx, "kept", "v", 0))

	removed, ran, err := NewCleanupJob(cache, nil, time.Minute, nil).Run(ctx)

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int64(1), removed)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	cleaner := &fakeCleaner{}
	s, err := New("@every 1s", NewCleanupJob(cleaner, nil, time.Minute, nil), nil)
	require.NoError(t, err)

	s.Start()
	s.Start()

	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_RestartsWithLiveContext(t *testing.T) {
	cleaner := &fakeCleaner{}
	s, err := New("@every 1s", NewCleanupJob(cleaner, nil, time.Minute, nil), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Start()
	require.NoError(t, s.Stop(ctx))

	s.Start()
	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop(ctx))

	assert.Zero(t, cleaner.cancelled.Load(), "passes after a restart must not see a cancelled context")
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	_, err := New("whenever", NewCleanupJob(&fakeCleaner{}, nil, time.Minute, nil), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}
