package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/adapter/http/dto"
	"github.com/iho/reconledger/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger?limit=50", nil)
	if got, err := parseIntQuery(req, "limit", 10); err != nil || got != 50 {
		t.Fatalf("expected limit=50, got %d (%v)", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ledger?limit=invalid", nil)
	if _, err := parseIntQuery(req, "limit", 10); err == nil {
		t.Fatalf("expected malformed limit to be rejected")
	}

	req.URL = &url.URL{RawQuery: ""}
	if got, err := parseIntQuery(req, "limit", 25); err != nil || got != 25 {
		t.Fatalf("expected default when missing, got %d (%v)", got, err)
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"transaction not found", domain.ErrTransactionNotFound, http.StatusNotFound},
		{"batch not found", domain.ErrBatchNotFound, http.StatusNotFound},
		{"report not found", domain.ErrReportNotFound, http.StatusNotFound},
		{"sum mismatch", &domain.PartitionSumError{}, http.StatusUnprocessableEntity},
		{"zero amount", domain.ErrZeroAmountTransaction, http.StatusUnprocessableEntity},
		{"empty batch", domain.ErrEmptyBatch, http.StatusBadRequest},
		{"bad table", fmt.Errorf("scope: %w", domain.ErrInvalidTableName), http.StatusBadRequest},
		{"bad date filter", domain.ErrInvalidDateFilter, http.StatusBadRequest},
		{"negative limit", domain.ErrInvalidLimit, http.StatusBadRequest},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}

	writeJSON(rr, http.StatusCreated, payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if decoded["status"] != "ok" {
		t.Fatalf("expected payload to round-trip, got %+v", decoded)
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	writeError(rr, http.StatusBadRequest, "bad request", "detail")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error != "bad request" {
		t.Fatalf("expected error message to propagate, got %+v", resp)
	}
}

func TestWriteDomainErrorReportsRemainder(t *testing.T) {
	rr := httptest.NewRecorder()

	writeDomainError(rr, "failed to save batch", &domain.PartitionSumError{
		Expected:  decimal.NewFromInt(-100),
		Allocated: decimal.NewFromInt(-99),
		Remainder: decimal.NewFromInt(1),
	})

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Remainder == nil || !resp.Remainder.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected remainder 1, got %+v", resp.Remainder)
	}
}

func TestParseIDList(t *testing.T) {
	ids, err := parseIDList("10000000005, -3,100000000000007")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 || ids[1] != -3 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if ids, err := parseIDList(""); err != nil || ids != nil {
		t.Fatalf("expected no ids, got %v, %v", ids, err)
	}

	if _, err := parseIDList("1,x"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}
