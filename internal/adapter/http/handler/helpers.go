package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/iho/reconledger/internal/adapter/http/dto"
	"github.com/iho/reconledger/internal/domain"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// writeDomainError maps err to a status and writes it. A partition sum mismatch also
// reports the remainder so the client can correct the set.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := dto.ErrorResponse{Error: message, Message: err.Error()}

	var sumErr *domain.PartitionSumError
	if errors.As(err, &sumErr) {
		remainder := sumErr.Remainder
		resp.Remainder = &remainder
	}

	writeJSON(w, mapDomainError(err), resp)
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrBatchNotFound),
		errors.Is(err, domain.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPartitionSumMismatch),
		errors.Is(err, domain.ErrZeroAmountTransaction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEmptyBatch),
		errors.Is(err, domain.ErrNonPositivePartition),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrNoteTooLong),
		errors.Is(err, domain.ErrInvalidPaymentID),
		errors.Is(err, domain.ErrInvalidTableName),
		errors.Is(err, domain.ErrInvalidDateFilter),
		errors.Is(err, domain.ErrInvalidLimit):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseIntQuery parses an integer query parameter, returning defaultValue when it is absent.
func parseIntQuery(r *http.Request, key string, defaultValue int) (int, error) {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, val)
	}
	return i, nil
}

// parseIDList parses a comma-separated list of flattened ledger ids.
func parseIDList(val string) ([]int64, error) {
	if strings.TrimSpace(val) == "" {
		return nil, nil
	}

	parts := strings.Split(val, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// uuidParam reads a UUID path parameter.
func uuidParam(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, key))
}
