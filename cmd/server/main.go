package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/iho/reconledger/internal/adapter/http"
	"github.com/iho/reconledger/internal/adapter/http/handler"
	"github.com/iho/reconledger/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/reconledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/reconledger/internal/adapter/repository/redis"
	"github.com/iho/reconledger/internal/infrastructure/config"
	"github.com/iho/reconledger/internal/infrastructure/logger"
	"github.com/iho/reconledger/internal/infrastructure/metrics"
	"github.com/iho/reconledger/internal/infrastructure/postgres"
	"github.com/iho/reconledger/internal/infrastructure/redis"
	"github.com/iho/reconledger/internal/usecase"
)

const (
	reportCachePrefix   = "reconledger:reports:"
	limiterSweepEvery   = time.Minute
	limiterIdleLifetime = 10 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Logger = logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	zerolog.TimeFieldFormat = time.RFC3339Nano

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger.Component(log.Logger, "migrate")); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	// Connect to PostgreSQL
	connectCtx, cancel := context.WithTimeout(ctx, cfg.DatabaseTimeout)
	pool, err := postgres.NewPoolWithConfig(connectCtx, postgres.PoolConfig{
		DatabaseURL:     cfg.DatabaseURL,
		MaxConns:        cfg.DatabaseMaxConns,
		MinConns:        cfg.DatabaseMinConns,
		MaxConnLifetime: cfg.DatabaseConnLifetime,
	})
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	// Connect to Redis
	redisClient, err := redis.NewClientWithConfig(ctx, redis.ClientConfig{
		URL:         cfg.RedisURL,
		PoolSize:    cfg.RedisPoolSize,
		PingRetries: cfg.RedisPingRetries,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()

	// Initialize repositories
	txManager := postgresRepo.NewTxManager(pool)
	// concurrent replacements of one batch fail with 40001 and go back through the retrier
	batchTxManager := postgresRepo.NewTxManager(pool, postgresRepo.WithIsolation(pgx.RepeatableRead))
	rawRepo := postgresRepo.NewRawTransactionRepository(pool)
	batchRepo := postgresRepo.NewBatchRepository(pool)
	dictRepo := postgresRepo.NewDictionaryRepository(pool)
	ledgerRepo := postgresRepo.NewLedgerRepository(pool)
	retrier := postgresRepo.NewRetrierWithConfig(postgresRepo.DefaultRetrierConfig, m, logger.Component(log.Logger, "retrier"))
	idGen := postgresRepo.NewULIDGenerator()
	reportStore := redisRepo.NewReportStore(redisRepo.NewCache(redisClient, reportCachePrefix))
	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient)

	// Initialize use cases
	classificationUC := usecase.NewClassificationUseCase(
		txManager, rawRepo, dictRepo, reportStore, retrier, idGen, m,
		logger.Component(log.Logger, "classification"),
		cfg.ClassificationChunkSize, cfg.ReportTTL,
	)
	batchUC := usecase.NewBatchUseCase(
		batchTxManager, rawRepo, batchRepo, dictRepo, retrier, idGen, m,
		logger.Component(log.Logger, "batch"),
	)
	ledgerUC := usecase.NewLedgerUseCase(ledgerRepo, m, logger.Component(log.Logger, "ledger"))

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
	go sweepLimiters(ctx, rateLimiter, limiterSweepEvery, limiterIdleLifetime)

	// Create router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		ClassificationHandler: handler.NewClassificationHandler(classificationUC),
		BatchHandler:          handler.NewBatchHandler(batchUC),
		LedgerHandler:         handler.NewLedgerHandler(ledgerUC),
		HealthHandler:         handler.NewHealthHandler(pool, redisClient),
		IdempotencyStore:      idempotencyStore,
		IdempotencyTTL:        cfg.IdempotencyTTL,
		RateLimiter:           rateLimiter,
		Metrics:               m,
		MetricsHandler:        promhttp.Handler(),
		Logger:                logger.Component(log.Logger, "http"),
	})

	server := newHTTPServer(cfg, router)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func newHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           h,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
}

// sweepLimiters drops per-client limiters that have been idle for maxIdle until ctx ends.
func sweepLimiters(ctx context.Context, rl *middleware.RateLimiter, every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.CleanupLimiters(maxIdle); n > 0 {
				log.Debug().Int("removed", n).Msg("dropped idle rate limiters")
			}
		}
	}
}
