package dto

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/usecase"
)

// RunClassificationRequest represents a request to start a classification run.
// An empty body classifies every raw transaction.
type RunClassificationRequest struct {
	Tables    []string `json:"tables,omitempty"`
	IDs       []string `json:"ids,omitempty"`
	PaymentID string   `json:"payment_id,omitempty"`
}

// ToScope converts to the use case scope.
func (r *RunClassificationRequest) ToScope() (usecase.Scope, error) {
	scope := usecase.Scope{
		Tables:    r.Tables,
		PaymentID: strings.TrimSpace(r.PaymentID),
	}

	for _, raw := range r.IDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return usecase.Scope{}, fmt.Errorf("invalid transaction id %q: %w", raw, err)
		}
		scope.IDs = append(scope.IDs, id)
	}

	if scope.PaymentID != "" {
		if err := domain.ValidatePaymentID(scope.PaymentID); err != nil {
			return usecase.Scope{}, err
		}
	}

	return scope, nil
}

// SaveBatchRequest represents a request to replace the batch of a raw transaction.
type SaveBatchRequest struct {
	Partitions []PartitionRequest `json:"partitions"`
}

// PartitionRequest is one user-entered partition. Amount is a positive magnitude; the
// sign is taken from the transaction.
type PartitionRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	PaymentID         string          `json:"payment_id,omitempty"`
	CounteragentID    string          `json:"counteragent_id,omitempty"`
	ProjectID         string          `json:"project_id,omitempty"`
	FinancialCodeID   string          `json:"financial_code_id,omitempty"`
	NominalCurrencyID string          `json:"nominal_currency_id,omitempty"`
	Note              string          `json:"note,omitempty"`
}

// ToDomainInputs converts to partition inputs.
func (r *SaveBatchRequest) ToDomainInputs() []domain.PartitionInput {
	inputs := make([]domain.PartitionInput, len(r.Partitions))
	for i, p := range r.Partitions {
		inputs[i] = domain.PartitionInput{
			Amount:            p.Amount,
			PaymentID:         strings.TrimSpace(p.PaymentID),
			CounteragentID:    p.CounteragentID,
			ProjectID:         p.ProjectID,
			FinancialCodeID:   p.FinancialCodeID,
			NominalCurrencyID: p.NominalCurrencyID,
			Note:              p.Note,
		}
	}
	return inputs
}
