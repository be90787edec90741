package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/iho/reconledger/internal/infrastructure/metrics"
)

// SQLSTATE codes that a fresh attempt of the same transaction can get past.
const (
	pgErrDeadlock             = "40P01"
	pgErrSerializationFailure = "40001"
	pgErrLockNotAvailable     = "55P03"
	pgErrTooManyConnections   = "53300"
)

// connectionCode labels retries of connection failures that never reached the server.
const connectionCode = "connection"

// RetrierConfig bounds the retries of one operation.
type RetrierConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetrierConfig suits chunk writes and batch replacements.
var DefaultRetrierConfig = RetrierConfig{
	MaxRetries:      3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsedTime:  10 * time.Second,
}

// Retrier implements usecase.Retrier with exponential backoff.
type Retrier struct {
	cfg     RetrierConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRetrier creates a retrier with DefaultRetrierConfig.
func NewRetrier(logger zerolog.Logger) *Retrier {
	return NewRetrierWithConfig(DefaultRetrierConfig, nil, logger)
}

// NewRetrierWithConfig creates a retrier. m may be nil.
func NewRetrierWithConfig(cfg RetrierConfig, m *metrics.Metrics, logger zerolog.Logger) *Retrier {
	return &Retrier{cfg: cfg, metrics: m, logger: logger}
}

// Retry runs operation until it succeeds, fails with an error a retry cannot fix, or the
// retry budget is spent. The last error is returned unwrapped.
func (r *Retrier) Retry(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = r.cfg.MaxElapsedTime

	retryCount := 0

	return backoff.Retry(func() error {
		err := operation()
		if err == nil {
			return nil
		}

		code, ok := retryableCode(err)
		if !ok || retryCount >= r.cfg.MaxRetries {
			return backoff.Permanent(err)
		}
		retryCount++

		if r.metrics != nil {
			r.metrics.DBRetries.WithLabelValues(code).Inc()
		}
		r.logger.Warn().
			Err(err).
			Str("code", code).
			Int("retry", retryCount).
			Msg("retryable database error, retrying")

		return err
	}, backoff.WithContext(b, ctx))
}

// retryableCode returns the label of a transient error.
func retryableCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrDeadlock, pgErrSerializationFailure, pgErrLockNotAvailable, pgErrTooManyConnections:
			return pgErr.Code, true
		}
		return "", false
	}
	if pgconn.SafeToRetry(err) {
		return connectionCode, true
	}
	return "", false
}

func isRetryableError(err error) bool {
	_, ok := retryableCode(err)
	return ok
}
