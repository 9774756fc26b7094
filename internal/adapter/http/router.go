package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iho/playerbank/internal/adapter/http/handler"
	"github.com/iho/playerbank/internal/adapter/http/middleware"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	BankHandler   *handler.BankHandler
	HealthHandler *handler.HealthHandler
	// SyncEndpoint is the websocket endpoint relay nodes connect to.
	SyncEndpoint http.Handler
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Metrics)

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	// Prometheus scrape target
	r.Handle("/metrics", promhttp.Handler())

	// Relay sync channel
	if cfg.SyncEndpoint != nil {
		r.Handle("/sync", cfg.SyncEndpoint)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/accounts/{player}", cfg.BankHandler.GetAccount)
		r.Get("/currencies", cfg.BankHandler.ListCurrencies)
		r.Get("/wealthy/{currency}", cfg.BankHandler.GetWealthy)
		r.Get("/audit", cfg.BankHandler.GetAuditLog)
		r.Post("/cache/invalidate", cfg.BankHandler.InvalidateCache)
	})

	return r
}
