package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/reconledger/internal/adapter/http/handler"
	"github.com/iho/reconledger/internal/adapter/http/middleware"
	"github.com/iho/reconledger/internal/infrastructure/metrics"
	"github.com/iho/reconledger/internal/usecase"
)

// RouterConfig holds dependencies for the router. IdempotencyStore, RateLimiter,
// Metrics and MetricsHandler are optional.
type RouterConfig struct {
	ClassificationHandler *handler.ClassificationHandler
	BatchHandler          *handler.BatchHandler
	LedgerHandler         *handler.LedgerHandler
	HealthHandler         *handler.HealthHandler
	IdempotencyStore      usecase.IdempotencyStore
	IdempotencyTTL        time.Duration
	RateLimiter           *middleware.RateLimiter
	Metrics               *metrics.Metrics
	MetricsHandler        http.Handler
	Logger                zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger)
			r.Use(idempotencyMiddleware.Wrap)
		}

		// Classification runs
		r.Route("/classification/runs", func(r chi.Router) {
			r.Post("/", cfg.ClassificationHandler.Run)
			r.Get("/latest", cfg.ClassificationHandler.Latest)
			r.Get("/{id}", cfg.ClassificationHandler.Get)
		})

		// Batch partitions
		r.Route("/transactions/{id}/batch", func(r chi.Router) {
			r.Get("/", cfg.BatchHandler.Get)
			r.Put("/", cfg.BatchHandler.Save)
			r.Delete("/", cfg.BatchHandler.Delete)
		})

		// Consolidated ledger
		r.Get("/ledger", cfg.LedgerHandler.Query)
	})

	return r
}
