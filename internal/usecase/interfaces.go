package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iho/reconledger/internal/domain"
)

// RawTransactionRepository defines data access for imported bank rows.
type RawTransactionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RawTransaction, error)
	ListForClassification(ctx context.Context, scope Scope) ([]*domain.RawTransaction, error)
	UpdateClassifications(ctx context.Context, tx Transaction, updates []ClassificationUpdate) error
}

// BatchRepository defines data access for partition overrides.
type BatchRepository interface {
	GetByRawTransaction(ctx context.Context, rawID uuid.UUID) (*domain.Batch, error)
	// ReplaceBatch deletes any existing batch of the raw transaction and inserts batch.
	ReplaceBatch(ctx context.Context, tx Transaction, batch *domain.Batch) error
	DeleteByRawTransaction(ctx context.Context, tx Transaction, rawID uuid.UUID) error
}

// DictionaryRepository loads the dictionaries a classification run snapshots.
type DictionaryRepository interface {
	Load(ctx context.Context) (*domain.DictionarySource, error)
}

// LedgerRepository loads every record family the consolidated ledger merges.
type LedgerRepository interface {
	LoadSources(ctx context.Context) (*LedgerSources, error)
}

// ReportStore keeps classification run reports for operator follow-up.
type ReportStore interface {
	Save(ctx context.Context, report *RunReport, ttl time.Duration) error
	Get(ctx context.Context, runID string) (*RunReport, error)
	Latest(ctx context.Context) (*RunReport, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier retries an operation on transient storage failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request failed so the client can retry it.
	Release(ctx context.Context, key string) error
}
