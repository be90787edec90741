package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/reconledger/internal/adapter/http/dto"
	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/usecase"
)

type classificationServiceStub struct {
	runFn    func(ctx context.Context, scope usecase.Scope) (*usecase.RunReport, error)
	latestFn func(ctx context.Context) (*usecase.RunReport, error)
	reportFn func(ctx context.Context, runID string) (*usecase.RunReport, error)
}

func (s *classificationServiceStub) Run(ctx context.Context, scope usecase.Scope) (*usecase.RunReport, error) {
	return s.runFn(ctx, scope)
}

func (s *classificationServiceStub) LatestReport(ctx context.Context) (*usecase.RunReport, error) {
	return s.latestFn(ctx)
}

func (s *classificationServiceStub) Report(ctx context.Context, runID string) (*usecase.RunReport, error) {
	return s.reportFn(ctx, runID)
}

type batchServiceStub struct {
	saveFn   func(ctx context.Context, rawID uuid.UUID, inputs []domain.PartitionInput) (*domain.Batch, error)
	getFn    func(ctx context.Context, rawID uuid.UUID) (*domain.Batch, error)
	deleteFn func(ctx context.Context, rawID uuid.UUID) error
}

func (s *batchServiceStub) Save(ctx context.Context, rawID uuid.UUID, inputs []domain.PartitionInput) (*domain.Batch, error) {
	return s.saveFn(ctx, rawID, inputs)
}

func (s *batchServiceStub) Get(ctx context.Context, rawID uuid.UUID) (*domain.Batch, error) {
	return s.getFn(ctx, rawID)
}

func (s *batchServiceStub) Delete(ctx context.Context, rawID uuid.UUID) error {
	return s.deleteFn(ctx, rawID)
}

type ledgerServiceStub struct {
	queryFn func(ctx context.Context, q usecase.LedgerQuery) (*usecase.Ledger, error)
}

func (s *ledgerServiceStub) Query(ctx context.Context, q usecase.LedgerQuery) (*usecase.Ledger, error) {
	return s.queryFn(ctx, q)
}

type pingerStub struct{ err error }

func (p pingerStub) Ping(ctx context.Context) error { return p.err }

// withURLParam routes req through chi so handlers can read path parameters.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestClassificationHandler_RunWithEmptyBody(t *testing.T) {
	var captured usecase.Scope
	h := NewClassificationHandler(&classificationServiceStub{
		runFn: func(ctx context.Context, scope usecase.Scope) (*usecase.RunReport, error) {
			captured = scope
			return &usecase.RunReport{RunID: "01HZY3J8Q5W7X9ABCDEFGHJKMN", Total: 4, Classified: 4}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classification/runs", http.NoBody)
	rec := httptest.NewRecorder()
	h.Run(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, captured.Tables)
	assert.Empty(t, captured.IDs)

	var report usecase.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 4, report.Classified)
}

func TestClassificationHandler_RunScoped(t *testing.T) {
	id := uuid.New()
	var captured usecase.Scope
	h := NewClassificationHandler(&classificationServiceStub{
		runFn: func(ctx context.Context, scope usecase.Scope) (*usecase.RunReport, error) {
			captured = scope
			return &usecase.RunReport{}, nil
		},
	})

	body := `{"tables":["bog_gel"],"ids":["` + id.String() + `"],"payment_id":"PAY-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/classification/runs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Run(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"bog_gel"}, captured.Tables)
	assert.Equal(t, []uuid.UUID{id}, captured.IDs)
	assert.Equal(t, "PAY-1", captured.PaymentID)
}

func TestClassificationHandler_RunErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		runErr error
		status int
	}{
		{"malformed json", `{"tables":`, nil, http.StatusBadRequest},
		{"malformed id", `{"ids":["nope"]}`, nil, http.StatusBadRequest},
		{"unknown table", `{"tables":["x"]}`, domain.ErrInvalidTableName, http.StatusBadRequest},
		{"storage failure", `{}`, errors.New("write chunk 2: connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewClassificationHandler(&classificationServiceStub{
				runFn: func(ctx context.Context, scope usecase.Scope) (*usecase.RunReport, error) {
					return &usecase.RunReport{Error: "failed"}, tt.runErr
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/classification/runs", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Run(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestClassificationHandler_Reports(t *testing.T) {
	h := NewClassificationHandler(&classificationServiceStub{
		latestFn: func(ctx context.Context) (*usecase.RunReport, error) {
			return &usecase.RunReport{RunID: "latest"}, nil
		},
		reportFn: func(ctx context.Context, runID string) (*usecase.RunReport, error) {
			if runID == "missing" {
				return nil, domain.ErrReportNotFound
			}
			return &usecase.RunReport{RunID: runID}, nil
		},
	})

	rec := httptest.NewRecorder()
	h.Latest(rec, httptest.NewRequest(http.MethodGet, "/api/v1/classification/runs/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"latest"`)

	rec = httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/classification/runs/run-1", nil), "id", "run-1")
	h.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/classification/runs/missing", nil), "id", "missing")
	h.Get(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchHandler_Save(t *testing.T) {
	rawID := uuid.New()
	var captured []domain.PartitionInput

	h := NewBatchHandler(&batchServiceStub{
		saveFn: func(ctx context.Context, id uuid.UUID, inputs []domain.PartitionInput) (*domain.Batch, error) {
			assert.Equal(t, rawID, id)
			captured = inputs
			return &domain.Batch{
				ID:               "BTC_A1B2C3_0F_FFFFFF",
				RawTransactionID: id,
				CreatedAt:        time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
				Partitions: []domain.Partition{
					{ID: 1, Position: 1, Amount: decimal.NewFromInt(-60), PaymentID: "PAY-1"},
					{ID: 2, Position: 2, Amount: decimal.NewFromInt(-40)},
				},
			}, nil
		},
	})

	body := `{"partitions":[{"amount":"60","payment_id":"PAY-1"},{"amount":"40","note":"rest"}]}`
	req := withURLParam(httptest.NewRequest(http.MethodPut, "/api/v1/transactions/"+rawID.String()+"/batch", strings.NewReader(body)), "id", rawID.String())
	rec := httptest.NewRecorder()
	h.Save(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, captured, 2)
	assert.True(t, captured[0].Amount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, "rest", captured[1].Note)

	var resp dto.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "BTC_A1B2C3_0F_FFFFFF", resp.ID)
	assert.Len(t, resp.Partitions, 2)
}

func TestBatchHandler_SaveSumMismatch(t *testing.T) {
	rawID := uuid.New()
	h := NewBatchHandler(&batchServiceStub{
		saveFn: func(ctx context.Context, id uuid.UUID, inputs []domain.PartitionInput) (*domain.Batch, error) {
			return nil, &domain.PartitionSumError{
				Expected:  decimal.NewFromInt(-100),
				Allocated: decimal.NewFromInt(-99),
				Remainder: decimal.NewFromInt(1),
			}
		},
	})

	body := `{"partitions":[{"amount":"99"}]}`
	req := withURLParam(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)), "id", rawID.String())
	rec := httptest.NewRecorder()
	h.Save(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Remainder)
	assert.True(t, resp.Remainder.Equal(decimal.NewFromInt(1)))
}

func TestBatchHandler_InvalidTransactionID(t *testing.T) {
	h := NewBatchHandler(&batchServiceStub{})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchHandler_GetAndDelete(t *testing.T) {
	rawID := uuid.New()
	h := NewBatchHandler(&batchServiceStub{
		getFn: func(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
			return nil, domain.ErrBatchNotFound
		},
		deleteFn: func(ctx context.Context, id uuid.UUID) error {
			return nil
		},
	})

	rec := httptest.NewRecorder()
	h.Get(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", rawID.String()))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Delete(rec, withURLParam(httptest.NewRequest(http.MethodDelete, "/", nil), "id", rawID.String()))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLedgerHandler_Query(t *testing.T) {
	var captured usecase.LedgerQuery
	h := NewLedgerHandler(&ledgerServiceStub{
		queryFn: func(ctx context.Context, q usecase.LedgerQuery) (*usecase.Ledger, error) {
			captured = q
			return &usecase.Ledger{
				Summaries: []domain.CurrencySummary{{CurrencyCode: "GEL", Closing: decimal.NewFromInt(10)}},
				Matched:   0,
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger?from=01.03.2025&to=2025-03-31&ids=10000000005,-3&limit=50", nil)
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "01.03.2025", captured.From)
	assert.Equal(t, "2025-03-31", captured.To)
	assert.Equal(t, []int64{10000000005, -3}, captured.IDs)
	assert.Equal(t, 50, captured.Limit)

	var resp dto.LedgerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Summaries, 1)
	assert.Equal(t, "GEL", resp.Summaries[0].CurrencyCode)
}

func TestLedgerHandler_QueryErrors(t *testing.T) {
	h := NewLedgerHandler(&ledgerServiceStub{
		queryFn: func(ctx context.Context, q usecase.LedgerQuery) (*usecase.Ledger, error) {
			return nil, domain.ErrInvalidDateFilter
		},
	})

	rec := httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ledger?ids=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ledger?from=March", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ledger?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid limit")
}

func TestHealthHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := NewHealthHandler(pingerStub{}, client)

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"postgres":"ok","redis":"ok"}}`, rec.Body.String())

	down := NewHealthHandler(pingerStub{err: errors.New("connection refused")}, client)
	rec = httptest.NewRecorder()
	down.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"postgres":"postgres unhealthy: connection refused","redis":"ok"}}`, rec.Body.String())

	mr.SetError("LOADING dataset in memory")
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis unhealthy")
}
