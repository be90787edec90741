package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/infrastructure/logger"
	"github.com/iho/reconledger/internal/infrastructure/metrics"
)

// BatchUseCase handles partition overrides of raw transactions.
type BatchUseCase struct {
	txManager TransactionManager
	rawRepo   RawTransactionRepository
	batchRepo BatchRepository
	dictRepo  DictionaryRepository
	retrier   Retrier
	idGen     IDGenerator
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewBatchUseCase creates a new BatchUseCase.
func NewBatchUseCase(
	txManager TransactionManager,
	rawRepo RawTransactionRepository,
	batchRepo BatchRepository,
	dictRepo DictionaryRepository,
	retrier Retrier,
	idGen IDGenerator,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *BatchUseCase {
	return &BatchUseCase{
		txManager: txManager,
		rawRepo:   rawRepo,
		batchRepo: batchRepo,
		dictRepo:  dictRepo,
		retrier:   retrier,
		idGen:     idGen,
		metrics:   m,
		logger:    logger,
	}
}

// Save validates the partitions against the raw transaction and atomically replaces its
// batch. Magnitudes are entered positive; every partition takes the sign of the
// transaction. Magnitudes are rounded to cents before any check, so the stored batch
// is the one that was validated.
func (uc *BatchUseCase) Save(ctx context.Context, rawID uuid.UUID, inputs []domain.PartitionInput) (*domain.Batch, error) {
	// 0. Validate inputs before touching storage
	if len(inputs) == 0 {
		uc.reject("empty")
		return nil, domain.ErrEmptyBatch
	}
	inputs = append([]domain.PartitionInput(nil), inputs...)
	magnitudes := make([]decimal.Decimal, len(inputs))
	for i := range inputs {
		inputs[i].Amount = inputs[i].Amount.Round(domain.AmountScale)
		in := inputs[i]
		if err := domain.ValidatePartitionInput(in); err != nil {
			uc.reject("invalid_partition")
			return nil, fmt.Errorf("partition %d: %w", i+1, err)
		}
		magnitudes[i] = in.Amount
	}

	// 1. Check the sum invariant against the stored amount
	rec, err := uc.rawRepo.GetByID(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePartitionAmounts(rec.Amount(), magnitudes); err != nil {
		uc.reject("sum_mismatch")
		return nil, err
	}

	// 2. Derive partition fields from the payment dictionary
	src, err := uc.dictRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dictionaries: %w", err)
	}
	log := logger.Ctx(ctx, uc.logger)
	dict := NewDictionaries(src, *log)

	batch := &domain.Batch{
		RawTransactionID: rec.ID,
		CreatedAt:        time.Now().UTC(),
		Partitions:       make([]domain.Partition, 0, len(inputs)),
	}
	for i, in := range inputs {
		p := domain.Partition{
			Position:          i + 1,
			Amount:            domain.SignLike(in.Amount, rec.Amount()),
			PaymentID:         in.PaymentID,
			CounteragentID:    in.CounteragentID,
			ProjectID:         in.ProjectID,
			FinancialCodeID:   in.FinancialCodeID,
			NominalCurrencyID: in.NominalCurrencyID,
			Note:              in.Note,
		}
		p, conv := ResolvePartitionPayment(p, rec, dict)
		if conv.RateMissing {
			if uc.metrics != nil {
				uc.metrics.FXRateMissing.WithLabelValues("batch").Inc()
			}
			log.Warn().
				Str("raw_transaction_id", rec.ID.String()).
				Int("position", p.Position).
				Msg("no exchange rate for partition nominal amount, kept unconverted")
		}
		batch.Partitions = append(batch.Partitions, p)
	}

	// 3. Keep the batch id stable across replacements
	existing, err := uc.batchRepo.GetByRawTransaction(ctx, rec.ID)
	switch {
	case err == nil:
		batch.ID = existing.ID
	case errors.Is(err, domain.ErrBatchNotFound):
		id, err := ulid.Parse(uc.idGen.Generate())
		if err != nil {
			return nil, fmt.Errorf("generate batch id: %w", err)
		}
		batch.ID = domain.NewBatchID(id)
	default:
		return nil, err
	}

	// 4. Delete and insert in one transaction
	err = uc.retrier.Retry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := uc.batchRepo.ReplaceBatch(ctx, tx, batch); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.BatchesSaved.Inc()
		uc.metrics.PartitionsPerSet.Observe(float64(len(batch.Partitions)))
	}

	log.Info().
		Str("batch_id", batch.ID).
		Str("raw_transaction_id", rec.ID.String()).
		Int("partitions", len(batch.Partitions)).
		Msg("batch saved")

	return batch, nil
}

// Get returns the batch of a raw transaction.
func (uc *BatchUseCase) Get(ctx context.Context, rawID uuid.UUID) (*domain.Batch, error) {
	return uc.batchRepo.GetByRawTransaction(ctx, rawID)
}

// Delete removes the batch of a raw transaction so the ledger shows it unsplit again.
func (uc *BatchUseCase) Delete(ctx context.Context, rawID uuid.UUID) error {
	err := uc.retrier.Retry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := uc.batchRepo.DeleteByRawTransaction(ctx, tx, rawID); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.BatchesDeleted.Inc()
	}
	logger.Ctx(ctx, uc.logger).Info().Str("raw_transaction_id", rawID.String()).Msg("batch deleted")

	return nil
}

func (uc *BatchUseCase) reject(reason string) {
	if uc.metrics != nil {
		uc.metrics.BatchRejections.WithLabelValues(reason).Inc()
	}
}

// ResolvePartitionPayment fills the payment-derived fields of a partition that were not
// explicitly overridden and computes its nominal amount from the signed account-currency
// amount on the record's value date.
func ResolvePartitionPayment(p domain.Partition, rec *domain.RawTransaction, dict *Dictionaries) (domain.Partition, Conversion) {
	if p.PaymentID != "" {
		p.PaymentID = dict.ResolveAlias(p.PaymentID)
		if payment, ok := dict.Payment(p.PaymentID); ok {
			p.PaymentID = payment.PaymentID
			p.CounteragentID = firstNonEmpty(p.CounteragentID, payment.CounteragentID)
			p.ProjectID = firstNonEmpty(p.ProjectID, payment.ProjectID)
			p.FinancialCodeID = firstNonEmpty(p.FinancialCodeID, payment.FinancialCodeID)
			p.NominalCurrencyID = firstNonEmpty(p.NominalCurrencyID, payment.CurrencyID)
		}
	}

	if p.NominalCurrencyID == "" {
		p.NominalAmount = decimal.NullDecimal{}
		return p, Conversion{Amount: p.Amount}
	}

	// an unparseable value date has no rate row, so the amount stays unconverted
	valueDate, _ := domain.ParseDate(rec.ValueDate)
	conv := dict.Converter().Convert(p.Amount, rec.AccountCurrency, p.NominalCurrencyID, valueDate)
	p.NominalAmount = decimal.NewNullDecimal(conv.Amount.Round(2))
	return p, conv
}
