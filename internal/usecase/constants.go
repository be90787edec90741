package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultChunkSize is the number of classification updates written per transaction
	DefaultChunkSize = 1000

	// DefaultReportTTL is how long run reports are kept
	DefaultReportTTL = 7 * 24 * time.Hour

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyPendingMarker is stored under a claimed key until the response is known
	IdempotencyPendingMarker = "processing"
)
