package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/reconledger/internal/adapter/http/dto"
	"github.com/iho/reconledger/internal/usecase"
)

// ClassificationService is the part of the classification use case the handler needs.
type ClassificationService interface {
	Run(ctx context.Context, scope usecase.Scope) (*usecase.RunReport, error)
	LatestReport(ctx context.Context) (*usecase.RunReport, error)
	Report(ctx context.Context, runID string) (*usecase.RunReport, error)
}

// ClassificationHandler handles classification run requests.
type ClassificationHandler struct {
	classificationUC ClassificationService
}

// NewClassificationHandler creates a new ClassificationHandler.
func NewClassificationHandler(classificationUC ClassificationService) *ClassificationHandler {
	return &ClassificationHandler{classificationUC: classificationUC}
}

// Run classifies the records in the requested scope and returns the run report.
func (h *ClassificationHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req dto.RunClassificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	scope, err := req.ToScope()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scope", err.Error())
		return
	}

	report, err := h.classificationUC.Run(r.Context(), scope)
	if err != nil {
		writeDomainError(w, "classification run failed", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Latest returns the report of the most recent run.
func (h *ClassificationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	report, err := h.classificationUC.LatestReport(r.Context())
	if err != nil {
		writeDomainError(w, "failed to get run report", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Get returns the report of one run.
func (h *ClassificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "missing run ID", "")
		return
	}

	report, err := h.classificationUC.Report(r.Context(), runID)
	if err != nil {
		writeDomainError(w, "failed to get run report", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
