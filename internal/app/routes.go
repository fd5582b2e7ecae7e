package app

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cache-service/internal/handlers"
	"cache-service/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers) {
	router.Use(middleware.RequestID, middleware.Tenant, middleware.LoggingMiddleware)

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Fixed paths are registered before {key} so they are not taken as keys.
	c := api.PathPrefix("/cache").Subrouter()
	c.HandleFunc("/stats", h.GetStats).Methods("GET")
	c.HandleFunc("/clear", h.Clear).Methods("POST")
	c.HandleFunc("/cleanup", h.Cleanup).Methods("POST")
	c.HandleFunc("/{key}/exists", h.Exists).Methods("GET")
	c.HandleFunc("/{key}/ttl", h.GetTTL).Methods("GET")
	c.HandleFunc("/{key}/expire", h.Expire).Methods("POST")
	c.HandleFunc("/{key}", h.GetValue).Methods("GET")
	c.HandleFunc("/{key}", h.PutValue).Methods("PUT")
	c.HandleFunc("/{key}", h.DeleteValue).Methods("DELETE")

	api.HandleFunc("/tiered", h.ListTiered).Methods("GET")
	t := api.PathPrefix("/tiered/{name}").Subrouter()
	t.HandleFunc("/clear", h.ClearTiered).Methods("POST")
	t.HandleFunc("/{key}", h.GetTiered).Methods("GET")
	t.HandleFunc("/{key}", h.PutTiered).Methods("PUT")
	t.HandleFunc("/{key}", h.EvictTiered).Methods("DELETE")
}
