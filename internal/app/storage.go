package app

import (
	"cache-service/internal/common/logging"
	"cache-service/internal/hybrid"
	"cache-service/internal/localcache"
	"cache-service/internal/storage"

	// Adapters register themselves with the storage registry.
	_ "cache-service/internal/storage/postgres"
	_ "cache-service/internal/storage/sqlite"
)

func (app *App) initializeStorage() error {
	switch app.Config.DatabaseType {
	case "postgres":
		app.Logger.Info("Database: PostgreSQL",
			logging.String("host", app.Config.PostgresHost),
			logging.String("database", app.Config.PostgresDB),
		)
	default:
		app.Logger.Info("Database: SQLite", logging.String("path", app.Config.DatabasePath))
	}

	repo, err := storage.New(app.Config)
	if err != nil {
		return err
	}
	app.Repository = repo
	return nil
}

func (app *App) initializeHybrid() {
	app.LocalCache = localcache.New[string](
		localcache.WithMaxSize(app.Config.LocalCacheMaxSize),
		localcache.WithSweepDelay(app.Config.LocalCacheSweepDelay),
		localcache.WithSweepInterval(app.Config.LocalCacheSweepInterval),
	)
	app.Hybrid = hybrid.NewManager(app.Repository, app.LocalCache, hybrid.WithLogger(app.Logger))
}
