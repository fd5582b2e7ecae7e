package app

import (
	"cache-service/internal/common/errors"
	"cache-service/internal/common/logging"
	"cache-service/internal/locks"
	"cache-service/internal/redis"
	"cache-service/internal/scheduler"
	"cache-service/internal/tiered"
)

func (app *App) initializeRedis() error {
	client, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDBNumber(),
		PoolSize: app.Config.RedisPoolSizeNumber(),
	})
	if err != nil {
		return errors.ConnectionError("failed to connect to Redis", err).
			WithContext("address", app.Config.RedisAddress)
	}

	app.RedisClient = client
	app.Logger.Info("Redis: Connected", logging.String("address", app.Config.RedisAddress))
	return nil
}

func (app *App) initializeTiered() {
	cfg := tiered.NewConfig(app.Config)
	app.Tiered = tiered.NewManager(app.RedisClient, cfg, app.Logger)
	app.Logger.Info("Tiered cache configured",
		logging.String("l1_mode", cfg.L1.Mode.String()),
		logging.String("topic", cfg.Topic),
	)
}

func (app *App) initializeLocks() {
	_, app.Locks = locks.NewDistributedLockManager(app.RedisClient, "", app.Logger)
}

func (app *App) initializeScheduler() error {
	job := scheduler.NewCleanupJob(app.Hybrid, app.Locks, app.Config.CleanupLockTTL, app.Logger)

	s, err := scheduler.New(app.Config.CleanupSchedule, job, app.Logger)
	if err != nil {
		return err
	}
	app.Scheduler = s
	return nil
}
