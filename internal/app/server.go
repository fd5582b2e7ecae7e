package app

import (
	"github.com/gorilla/mux"

	"cache-service/internal/handlers"
	"cache-service/internal/server"
)

// NewServer builds the HTTP server with all handlers configured
func (app *App) NewServer() *server.Server {
	h := handlers.New(app.Hybrid,
		handlers.WithTiered(app.Tiered),
		handlers.WithHealthCheck("storage", app.Repository.Health),
		handlers.WithHealthCheck("redis", app.RedisClient.Health),
		handlers.WithLogger(app.Logger),
	)

	router := mux.NewRouter()
	SetupRoutes(router, h)

	return server.New(router, app.Config.Port)
}
