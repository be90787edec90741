package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/iho/reconledger/internal/adapter/http/dto"
	"github.com/iho/reconledger/internal/domain"
)

// BatchService is the part of the batch use case the handler needs.
type BatchService interface {
	Save(ctx context.Context, rawID uuid.UUID, inputs []domain.PartitionInput) (*domain.Batch, error)
	Get(ctx context.Context, rawID uuid.UUID) (*domain.Batch, error)
	Delete(ctx context.Context, rawID uuid.UUID) error
}

// BatchHandler handles batch partition requests for one raw transaction.
type BatchHandler struct {
	batchUC BatchService
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batchUC BatchService) *BatchHandler {
	return &BatchHandler{batchUC: batchUC}
}

// Get returns the batch of a raw transaction.
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	rawID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction ID", err.Error())
		return
	}

	batch, err := h.batchUC.Get(r.Context(), rawID)
	if err != nil {
		writeDomainError(w, "failed to get batch", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BatchFromDomain(batch))
}

// Save replaces the batch of a raw transaction with the submitted partition set.
func (h *BatchHandler) Save(w http.ResponseWriter, r *http.Request) {
	rawID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction ID", err.Error())
		return
	}

	var req dto.SaveBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	batch, err := h.batchUC.Save(r.Context(), rawID, req.ToDomainInputs())
	if err != nil {
		writeDomainError(w, "failed to save batch", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BatchFromDomain(batch))
}

// Delete removes the batch of a raw transaction.
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rawID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction ID", err.Error())
		return
	}

	if err := h.batchUC.Delete(r.Context(), rawID); err != nil {
		writeDomainError(w, "failed to delete batch", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
