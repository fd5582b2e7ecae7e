package app

import (
	"context"
	"time"

	"cache-service/internal/common/logging"
	"cache-service/internal/config"
	"cache-service/internal/hybrid"
	"cache-service/internal/localcache"
	"cache-service/internal/locks"
	"cache-service/internal/metrics"
	"cache-service/internal/redis"
	"cache-service/internal/scheduler"
	"cache-service/internal/storage"
	"cache-service/internal/tiered"
)

// statsInterval is how often hybrid statistics are copied into gauges.
const statsInterval = 15 * time.Second

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Repository  storage.Repository
	LocalCache  *localcache.Cache[string]
	Hybrid      *hybrid.Manager
	RedisClient *redis.Client
	Tiered      *tiered.Manager
	Locks       *locks.Manager
	Scheduler   *scheduler.Scheduler
	Collector   *metrics.Collector
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies. On error
// everything created so far is released.
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(
			logging.String("component", "app"),
			logging.String("node_id", cfg.NodeID),
		),
	}

	if err := app.initialize(); err != nil {
		app.Cleanup()
		return nil, err
	}
	return app, nil
}

// initialize creates components in dependency order.
func (app *App) initialize() error {
	if err := app.initializeStorage(); err != nil {
		return err
	}
	app.initializeHybrid()

	if err := app.initializeRedis(); err != nil {
		return err
	}
	app.initializeTiered()
	app.initializeLocks()

	if err := app.initializeScheduler(); err != nil {
		return err
	}
	app.Collector = metrics.NewCollector(app.Hybrid, statsInterval, app.Logger)
	return nil
}

// Start launches the background workers: invalidation subscriber, cleanup
// schedule and stats collector. It returns once the subscription is live.
func (app *App) Start(ctx context.Context) error {
	if err := app.Tiered.Start(ctx); err != nil {
		return err
	}
	app.Scheduler.Start()
	go app.Collector.Start(ctx)
	return nil
}

// Shutdown stops the background workers, waiting for a running cleanup up
// to ctx's deadline.
func (app *App) Shutdown(ctx context.Context) error {
	if app.Collector != nil {
		app.Collector.Stop()
	}
	if app.Scheduler != nil {
		if err := app.Scheduler.Stop(ctx); err != nil {
			app.Logger.Warn("Cleanup scheduler did not stop in time", logging.Err(err))
		}
	}
	if app.Locks != nil {
		if err := app.Locks.Close(); err != nil {
			app.Logger.Warn("Failed to release held locks", logging.Err(err))
		}
	}
	if app.Tiered != nil {
		if err := app.Tiered.Close(); err != nil {
			app.Logger.Warn("Failed to stop invalidation subscriber", logging.Err(err))
		}
	}
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.LocalCache != nil {
		app.LocalCache.Close()
	}
	if app.Repository != nil {
		if err := app.Repository.Close(); err != nil {
			app.Logger.Warn("Failed to close storage", logging.Err(err))
		}
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("Failed to close Redis client", logging.Err(err))
		}
	}
}
