package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"cache-service/internal/common/logging"
	"cache-service/internal/config"
)

const shutdownTimeout = 30 * time.Second

// Run is the main entry point for the application
func Run() error {
	_ = godotenv.Load()

	cfg := config.Load()

	flush, err := logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFile, cfg.LogFormat == "json",
		logging.String("node_id", cfg.NodeID))
	if err != nil {
		return err
	}
	defer flush()

	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	logging.Info("Starting cache service", logging.String("port", cfg.Port))

	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		logging.Error("Failed to start background workers", err)
		return err
	}

	srv := app.NewServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("Server forced to shutdown", err)
		}
		return app.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error("Server stopped with error", err)
		return err
	}

	logging.Info("Server exited")
	return nil
}
