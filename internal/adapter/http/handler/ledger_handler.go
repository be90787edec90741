package handler

import (
	"context"
	"net/http"

	"github.com/iho/reconledger/internal/adapter/http/dto"
	"github.com/iho/reconledger/internal/usecase"
)

// LedgerService is the part of the ledger use case the handler needs.
type LedgerService interface {
	Query(ctx context.Context, q usecase.LedgerQuery) (*usecase.Ledger, error)
}

// LedgerHandler serves the consolidated ledger.
type LedgerHandler struct {
	ledgerUC LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerUC LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerUC: ledgerUC}
}

// Query returns one page of the consolidated ledger with per-currency totals.
// Query parameters: from, to, ids (comma-separated flattened ids) and limit.
func (h *LedgerHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ids, err := parseIDList(q.Get("ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ids", err.Error())
		return
	}

	limit, err := parseIntQuery(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}

	ledger, err := h.ledgerUC.Query(r.Context(), usecase.LedgerQuery{
		From:  q.Get("from"),
		To:    q.Get("to"),
		IDs:   ids,
		Limit: limit,
	})
	if err != nil {
		writeDomainError(w, "failed to query ledger", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LedgerFromUseCase(ledger))
}
