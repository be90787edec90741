package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/reconledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/reconledger/internal/adapter/http/middleware"
	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/infrastructure/metrics"
	"github.com/iho/reconledger/internal/usecase"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1, nil)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classification/runs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if !store.checkCalled {
		t.Fatalf("expected idempotency store to be used")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected run to succeed, got %d", rec.Code)
	}
	if !store.updated {
		t.Fatalf("expected the successful response to be stored")
	}
}

func TestNewRouter_BatchRouteReachesHandler(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+uuid.NewString()+"/batch", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected missing batch to return 404, got %d", rec.Code)
	}
}

func TestNewRouter_ServesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(registry)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.Metrics = m
		cfg.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /metrics to return 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "reconledger_http_requests_total") {
		t.Fatalf("expected HTTP request counter in metrics output")
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"POST /api/v1/classification/runs/",
		"GET /api/v1/classification/runs/latest",
		"GET /api/v1/classification/runs/{id}",
		"GET /api/v1/transactions/{id}/batch/",
		"PUT /api/v1/transactions/{id}/batch/",
		"DELETE /api/v1/transactions/{id}/batch/",
		"GET /api/v1/ledger",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered, have %v", route, seen)
		}
	}
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	cfg := RouterConfig{
		ClassificationHandler: handler.NewClassificationHandler(stubClassificationService{}),
		BatchHandler:          handler.NewBatchHandler(stubBatchService{}),
		LedgerHandler:         handler.NewLedgerHandler(stubLedgerService{}),
		HealthHandler:         &handler.HealthHandler{},
		Logger:                zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type stubClassificationService struct{}

func (stubClassificationService) Run(ctx context.Context, scope usecase.Scope) (*usecase.RunReport, error) {
	return &usecase.RunReport{RunID: "run"}, nil
}

func (stubClassificationService) LatestReport(ctx context.Context) (*usecase.RunReport, error) {
	return nil, domain.ErrReportNotFound
}

func (stubClassificationService) Report(ctx context.Context, runID string) (*usecase.RunReport, error) {
	return nil, domain.ErrReportNotFound
}

type stubBatchService struct{}

func (stubBatchService) Save(ctx context.Context, rawID uuid.UUID, inputs []domain.PartitionInput) (*domain.Batch, error) {
	return &domain.Batch{RawTransactionID: rawID}, nil
}

func (stubBatchService) Get(ctx context.Context, rawID uuid.UUID) (*domain.Batch, error) {
	return nil, domain.ErrBatchNotFound
}

func (stubBatchService) Delete(ctx context.Context, rawID uuid.UUID) error {
	return nil
}

type stubLedgerService struct{}

func (stubLedgerService) Query(ctx context.Context, q usecase.LedgerQuery) (*usecase.Ledger, error) {
	return &usecase.Ledger{}, nil
}

type stubIdempotencyStore struct {
	checkCalled bool
	updated     bool
}

func (s *stubIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.checkCalled = true
	return false, nil, nil
}

func (s *stubIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	s.updated = true
	return nil
}

func (s *stubIdempotencyStore) Release(ctx context.Context, key string) error {
	return nil
}
