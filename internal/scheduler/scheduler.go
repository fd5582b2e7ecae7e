// Package scheduler runs the periodic removal of expired persisted entries.
// Every node schedules the job; a distributed lock lease makes sure only one
// of them does the work on a given tick.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cache-service/internal/common/errors"
	"cache-service/internal/common/logging"
	"cache-service/internal/locks"
	"cache-service/internal/metrics"
)

// CleanupLockKey is the lock taken around every cleanup run.
const CleanupLockKey = "cache-service:cleanup"

// Cleaner removes expired entries and reports how many were deleted.
type Cleaner interface {
	CleanupExpiredEntries(ctx context.Context) (int64, error)
}

// Locker runs fn while holding key. *locks.Manager implements it.
type Locker interface {
	WithLock(ctx context.Context, key string, expiration time.Duration, fn func(ctx context.Context) error) error
}

// CleanupJob is one cleanup pass. With a nil Locker the pass runs unguarded,
// which is only safe for single-node deployments.
type CleanupJob struct {
	cleaner Cleaner
	locker  Locker
	lockTTL time.Duration
	logger  logging.Logger
}

func NewCleanupJob(cleaner Cleaner, locker Locker, lockTTL time.Duration, logger logging.Logger) *CleanupJob {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &CleanupJob{
		cleaner: cleaner,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logging.OrGlobal(logger, "cleanup-job"),
	}
}

// Run performs one pass. It returns the number of rows removed and whether
// this node did the work; a pass skipped because another node holds the lock
// is not an error.
func (j *CleanupJob) Run(ctx context.Context) (int64, bool, error) {
	var removed int64
	work := func(ctx context.Context) error {
		n, err := j.cleaner.CleanupExpiredEntries(ctx)
		removed = n
		return err
	}

	var err error
	if j.locker == nil {
		err = work(ctx)
	} else {
		err = j.locker.WithLock(ctx, CleanupLockKey, j.lockTTL, work)
	}

	switch {
	case stderrors.Is(err, locks.ErrLockHeld):
		metrics.CleanupRuns.WithLabelValues("skipped").Inc()
		j.logger.Debug("Cleanup skipped, another node holds the lock")
		return 0, false, nil
	case err != nil:
		metrics.CleanupRuns.WithLabelValues("failed").Inc()
		j.logger.Error("Cleanup failed", err)
		return 0, true, err
	}

	metrics.CleanupRuns.WithLabelValues("completed").Inc()
	metrics.CleanupRemoved.Add(float64(removed))
	j.logger.Debug("Cleanup completed", logging.Int64("removed", removed))
	return removed, true, nil
}

// Scheduler runs a CleanupJob on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	job      *CleanupJob
	schedule string
	logger   logging.Logger

	mu      sync.Mutex
	running bool

	// ctxMu guards the context handed to passes. It is separate from mu so a
	// pass starting while Stop waits does not block on Stop.
	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses schedule (five-field cron or a descriptor such as "@every 10m")
// and registers job. Nothing runs until Start.
func New(schedule string, job *CleanupJob, logger logging.Logger) (*Scheduler, error) {
	logger = logging.OrGlobal(logger, "scheduler")

	s := &Scheduler{
		job:      job,
		schedule: schedule,
		logger:   logger,
	}
	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid cleanup schedule %q: %v", schedule, err))
	}
	return s, nil
}

func (s *Scheduler) tick() {
	s.ctxMu.Lock()
	ctx := s.ctx
	s.ctxMu.Unlock()

	_, _, _ = s.job.Run(ctx)
}

// Start begins running the schedule in the background. A stopped scheduler
// can be started again.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	s.ctxMu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.ctxMu.Unlock()

	s.cron.Start()
	s.logger.Info("Cleanup scheduler started", logging.String("schedule", s.schedule))
}

// Stop cancels a running pass and waits for it to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	s.ctxMu.Lock()
	s.cancel()
	s.ctxMu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Cleanup scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own logging into ours.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, err, kvFields(keysAndValues)...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logging.Field{Key: key, Value: kv[i+1]})
	}
	return fields
}
