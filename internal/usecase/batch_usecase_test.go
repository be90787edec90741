package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/infrastructure/metrics"
	"github.com/iho/reconledger/internal/usecase"
	"github.com/iho/reconledger/internal/usecase/mocks"
)

const fixedULID = "01HZY3J8Q5W7X9ABCDEFGHJKMN"

type batchMocks struct {
	txManager *mocks.MockTransactionManager
	rawRepo   *mocks.MockRawTransactionRepository
	batchRepo *mocks.MockBatchRepository
	dictRepo  *mocks.MockDictionaryRepository
	retrier   *mocks.MockRetrier
	idGen     *mocks.MockIDGenerator
	metrics   *metrics.Metrics
}

func newBatchMocks(ctrl *gomock.Controller) *batchMocks {
	m := &batchMocks{
		txManager: mocks.NewMockTransactionManager(ctrl),
		rawRepo:   mocks.NewMockRawTransactionRepository(ctrl),
		batchRepo: mocks.NewMockBatchRepository(ctrl),
		dictRepo:  mocks.NewMockDictionaryRepository(ctrl),
		retrier:   mocks.NewMockRetrier(ctrl),
		idGen:     mocks.NewMockIDGenerator(ctrl),
		metrics:   metrics.NewWithRegisterer(prometheus.NewRegistry()),
	}
	m.retrier.EXPECT().Retry(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, op func() error) error { return op() },
	).AnyTimes()
	return m
}

func (m *batchMocks) expectCommit(ctrl *gomock.Controller) *mocks.MockTransaction {
	tx := mocks.NewMockTransaction(ctrl)
	tx.EXPECT().Commit(gomock.Any()).Return(nil)
	tx.EXPECT().Rollback(gomock.Any()).Return(nil)
	m.txManager.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	return tx
}

func (m *batchMocks) useCase() *usecase.BatchUseCase {
	return usecase.NewBatchUseCase(m.txManager, m.rawRepo, m.batchRepo, m.dictRepo, m.retrier, m.idGen, m.metrics, zerolog.Nop())
}

func batchDictionary() *domain.DictionarySource {
	return &domain.DictionarySource{
		Payments: []domain.Payment{
			{PaymentID: "PAY-1", CounteragentID: "CA-1", ProjectID: "PRJ-1", FinancialCodeID: "FC-1", CurrencyID: "2", Source: domain.PaymentSourcePayment},
			{PaymentID: "PAY-2", CounteragentID: "CA-2", ProjectID: "PRJ-2", FinancialCodeID: "FC-2", CurrencyID: "1", Source: domain.PaymentSourcePayment},
		},
		Aliases:    []domain.PaymentAlias{{DuplicateID: "PAY-1-OLD", CanonicalID: "PAY-1"}},
		Currencies: []domain.Currency{{ID: "1", Code: "GEL"}, {ID: "2", Code: "USD"}},
		Rates: []domain.ExchangeRate{
			{Date: "2025-03-14", Code: "USD", Rate: decimal.RequireFromString("2.5")},
		},
	}
}

func outgoingRecord() *domain.RawTransaction {
	rec := &domain.RawTransaction{
		SourceTable:     "bog_gel",
		LocalID:         9,
		DocKey:          "DOC-9",
		EntryID:         "1",
		Debit:           decimal.NewNullDecimal(decimal.NewFromInt(100)),
		ValueDate:       "14.03.2025",
		AccountCurrency: "GEL",
	}
	rec.ID = rec.ComputeID()
	return rec
}

func parts(amounts ...string) []domain.PartitionInput {
	out := make([]domain.PartitionInput, len(amounts))
	for i, a := range amounts {
		out[i] = domain.PartitionInput{Amount: decimal.RequireFromString(a)}
	}
	return out
}

func TestBatchUseCase_SaveNewBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	rec := outgoingRecord()

	m.rawRepo.EXPECT().GetByID(gomock.Any(), rec.ID).Return(rec, nil)
	m.dictRepo.EXPECT().Load(gomock.Any()).Return(batchDictionary(), nil)
	m.batchRepo.EXPECT().GetByRawTransaction(gomock.Any(), rec.ID).Return(nil, domain.ErrBatchNotFound)
	m.idGen.EXPECT().Generate().Return(fixedULID)
	tx := m.expectCommit(ctrl)

	var stored *domain.Batch
	m.batchRepo.EXPECT().ReplaceBatch(gomock.Any(), tx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, tx usecase.Transaction, b *domain.Batch) error {
			stored = b
			return nil
		},
	)

	inputs := parts("60", "40")
	inputs[0].PaymentID = "PAY-1-OLD"
	inputs[1].PaymentID = "PAY-2"
	inputs[1].ProjectID = "PRJ-OVERRIDE"
	inputs[1].Note = "office share"

	batch, err := m.useCase().Save(context.Background(), rec.ID, inputs)
	require.NoError(t, err)
	assert.Same(t, batch, stored)

	assert.Equal(t, domain.NewBatchID(ulid.MustParse(fixedULID)), batch.ID)
	assert.True(t, domain.IsBatchID(batch.ID))
	assert.Equal(t, rec.ID, batch.RawTransactionID)
	require.Len(t, batch.Partitions, 2)

	first := batch.Partitions[0]
	assert.Equal(t, 1, first.Position)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(-60)), "sign follows the transaction: %s", first.Amount)
	assert.Equal(t, "PAY-1", first.PaymentID, "alias resolved to canonical id")
	assert.Equal(t, "CA-1", first.CounteragentID)
	assert.Equal(t, "PRJ-1", first.ProjectID)
	assert.Equal(t, "FC-1", first.FinancialCodeID)
	assert.Equal(t, "2", first.NominalCurrencyID)
	require.True(t, first.NominalAmount.Valid)
	assert.True(t, first.NominalAmount.Decimal.Equal(decimal.NewFromInt(-24)), "60 GEL at 2.5: %s", first.NominalAmount.Decimal)

	second := batch.Partitions[1]
	assert.Equal(t, 2, second.Position)
	assert.Equal(t, "PRJ-OVERRIDE", second.ProjectID, "explicit override wins over payment")
	assert.Equal(t, "CA-2", second.CounteragentID)
	assert.Equal(t, "office share", second.Note)
	assert.True(t, second.NominalAmount.Decimal.Equal(decimal.NewFromInt(-40)))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.BatchesSaved))
}

func TestBatchUseCase_SaveKeepsExistingBatchID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	rec := outgoingRecord()

	m.rawRepo.EXPECT().GetByID(gomock.Any(), rec.ID).Return(rec, nil)
	m.dictRepo.EXPECT().Load(gomock.Any()).Return(batchDictionary(), nil)
	m.batchRepo.EXPECT().GetByRawTransaction(gomock.Any(), rec.ID).Return(&domain.Batch{ID: "BTC_AAAAAA_BB_CCCCCC"}, nil)
	m.expectCommit(ctrl)
	m.batchRepo.EXPECT().ReplaceBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	batch, err := m.useCase().Save(context.Background(), rec.ID, parts("100"))
	require.NoError(t, err)
	assert.Equal(t, "BTC_AAAAAA_BB_CCCCCC", batch.ID)

	only := batch.Partitions[0]
	assert.True(t, only.Amount.Equal(decimal.NewFromInt(-100)))
	assert.False(t, only.NominalAmount.Valid, "no nominal currency, no nominal amount")
}

func TestBatchUseCase_SaveRejections(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []domain.PartitionInput
		lookup  bool
		wantErr error
		reason  string
	}{
		{name: "empty", inputs: nil, wantErr: domain.ErrEmptyBatch, reason: "empty"},
		{name: "zero partition", inputs: parts("100", "0"), wantErr: domain.ErrNonPositivePartition, reason: "invalid_partition"},
		{name: "negative partition", inputs: parts("-100"), wantErr: domain.ErrNonPositivePartition, reason: "invalid_partition"},
		{name: "below one cent", inputs: parts("100", "0.004"), wantErr: domain.ErrNonPositivePartition, reason: "invalid_partition"},
		{name: "sum short by one", inputs: parts("60", "39"), lookup: true, wantErr: domain.ErrPartitionSumMismatch, reason: "sum_mismatch"},
		{name: "sum over", inputs: parts("60", "40.02"), lookup: true, wantErr: domain.ErrPartitionSumMismatch, reason: "sum_mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			m := newBatchMocks(ctrl)
			rec := outgoingRecord()
			if tt.lookup {
				m.rawRepo.EXPECT().GetByID(gomock.Any(), rec.ID).Return(rec, nil)
			}

			_, err := m.useCase().Save(context.Background(), rec.ID, tt.inputs)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.BatchRejections.WithLabelValues(tt.reason)))
		})
	}
}

func TestBatchUseCase_SaveReportsRemainder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	rec := outgoingRecord()
	m.rawRepo.EXPECT().GetByID(gomock.Any(), rec.ID).Return(rec, nil)

	_, err := m.useCase().Save(context.Background(), rec.ID, parts("99"))

	var sumErr *domain.PartitionSumError
	require.True(t, errors.As(err, &sumErr))
	assert.True(t, sumErr.Remainder.Equal(decimal.NewFromInt(1)))
}

func TestBatchUseCase_SaveWithinTolerance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	rec := outgoingRecord()
	m.rawRepo.EXPECT().GetByID(gomock.Any(), rec.ID).Return(rec, nil)
	m.dictRepo.EXPECT().Load(gomock.Any()).Return(batchDictionary(), nil)
	m.batchRepo.EXPECT().GetByRawTransaction(gomock.Any(), rec.ID).Return(nil, domain.ErrBatchNotFound)
	m.idGen.EXPECT().Generate().Return(fixedULID)
	m.expectCommit(ctrl)
	m.batchRepo.EXPECT().ReplaceBatch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := m.useCase().Save(context.Background(), rec.ID, parts("33.33", "33.33", "33.33"))
	require.NoError(t, err)
}

func TestBatchUseCase_SaveRoundsToStoredScale(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	rec := outgoingRecord()
	m.rawRepo.EXPECT().GetByID(gomock.Any(), rec.ID).Return(rec, nil)
	m.dictRepo.EXPECT().Load(gomock.Any()).Return(batchDictionary(), nil)
	m.batchRepo.EXPECT().GetByRawTransaction(gomock.Any(), rec.ID).Return(nil, domain.ErrBatchNotFound)
	m.idGen.EXPECT().Generate().Return(fixedULID)
	m.expectCommit(ctrl)

	var stored *domain.Batch
	m.batchRepo.EXPECT().ReplaceBatch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, tx usecase.Transaction, b *domain.Batch) error {
			stored = b
			return nil
		},
	)

	inputs := parts("60.004", "39.996")
	_, err := m.useCase().Save(context.Background(), rec.ID, inputs)
	require.NoError(t, err)

	require.Len(t, stored.Partitions, 2)
	assert.True(t, stored.Partitions[0].Amount.Equal(decimal.NewFromInt(-60)), "got %s", stored.Partitions[0].Amount)
	assert.True(t, stored.Partitions[1].Amount.Equal(decimal.NewFromInt(-40)), "got %s", stored.Partitions[1].Amount)
	assert.True(t, inputs[0].Amount.Equal(decimal.RequireFromString("60.004")), "caller's inputs are left untouched")
}

func TestBatchUseCase_SaveStorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	rec := outgoingRecord()
	m.rawRepo.EXPECT().GetByID(gomock.Any(), rec.ID).Return(rec, nil)
	m.dictRepo.EXPECT().Load(gomock.Any()).Return(batchDictionary(), nil)
	m.batchRepo.EXPECT().GetByRawTransaction(gomock.Any(), rec.ID).Return(nil, domain.ErrBatchNotFound)
	m.idGen.EXPECT().Generate().Return(fixedULID)

	tx := mocks.NewMockTransaction(ctrl)
	tx.EXPECT().Rollback(gomock.Any()).Return(nil)
	m.txManager.EXPECT().Begin(gomock.Any()).Return(tx, nil)

	dbErr := errors.New("unique violation")
	m.batchRepo.EXPECT().ReplaceBatch(gomock.Any(), tx, gomock.Any()).Return(dbErr)

	_, err := m.useCase().Save(context.Background(), rec.ID, parts("100"))
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.metrics.BatchesSaved))
}

func TestBatchUseCase_SaveUnknownTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	id := uuid.New()
	m.rawRepo.EXPECT().GetByID(gomock.Any(), id).Return(nil, domain.ErrTransactionNotFound)

	_, err := m.useCase().Save(context.Background(), id, parts("100"))
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestBatchUseCase_Delete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	id := uuid.New()
	tx := m.expectCommit(ctrl)
	m.batchRepo.EXPECT().DeleteByRawTransaction(gomock.Any(), tx, id).Return(nil)

	require.NoError(t, m.useCase().Delete(context.Background(), id))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.BatchesDeleted))
}

func TestBatchUseCase_DeleteMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	id := uuid.New()
	tx := mocks.NewMockTransaction(ctrl)
	tx.EXPECT().Rollback(gomock.Any()).Return(nil)
	m.txManager.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	m.batchRepo.EXPECT().DeleteByRawTransaction(gomock.Any(), tx, id).Return(domain.ErrBatchNotFound)

	err := m.useCase().Delete(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)
}

func TestBatchUseCase_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m := newBatchMocks(ctrl)
	id := uuid.New()
	m.batchRepo.EXPECT().GetByRawTransaction(gomock.Any(), id).Return(&domain.Batch{ID: "BTC_000000_00_000001", RawTransactionID: id}, nil)

	batch, err := m.useCase().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, batch.RawTransactionID)
}
