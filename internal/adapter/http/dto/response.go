package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/usecase"
)

// BatchResponse represents a batch in API responses.
type BatchResponse struct {
	ID               string              `json:"id"`
	RawTransactionID string              `json:"raw_transaction_id"`
	CreatedAt        time.Time           `json:"created_at"`
	Partitions       []PartitionResponse `json:"partitions"`
}

// PartitionResponse represents a stored partition in API responses.
type PartitionResponse struct {
	ID                int64            `json:"id"`
	Position          int              `json:"position"`
	Amount            decimal.Decimal  `json:"amount"`
	PaymentID         string           `json:"payment_id,omitempty"`
	CounteragentID    string           `json:"counteragent_id,omitempty"`
	ProjectID         string           `json:"project_id,omitempty"`
	FinancialCodeID   string           `json:"financial_code_id,omitempty"`
	NominalCurrencyID string           `json:"nominal_currency_id,omitempty"`
	NominalAmount     *decimal.Decimal `json:"nominal_amount,omitempty"`
	Note              string           `json:"note,omitempty"`
}

// BatchFromDomain converts domain batch to response.
func BatchFromDomain(b *domain.Batch) *BatchResponse {
	resp := &BatchResponse{
		ID:               b.ID,
		RawTransactionID: b.RawTransactionID.String(),
		CreatedAt:        b.CreatedAt,
		Partitions:       make([]PartitionResponse, len(b.Partitions)),
	}
	for i, p := range b.Partitions {
		resp.Partitions[i] = PartitionResponse{
			ID:                p.ID,
			Position:          p.Position,
			Amount:            p.Amount,
			PaymentID:         p.PaymentID,
			CounteragentID:    p.CounteragentID,
			ProjectID:         p.ProjectID,
			FinancialCodeID:   p.FinancialCodeID,
			NominalCurrencyID: p.NominalCurrencyID,
			NominalAmount:     nullable(p.NominalAmount),
			Note:              p.Note,
		}
	}
	return resp
}

// LedgerResponse represents one consolidated ledger page.
type LedgerResponse struct {
	Entries   []LedgerEntryResponse     `json:"entries"`
	Summaries []CurrencySummaryResponse `json:"summaries"`
	Matched   int                       `json:"matched"`
	Undated   int                       `json:"undated"`
}

// LedgerEntryResponse represents one ledger row. ID is the flattened synthetic id.
type LedgerEntryResponse struct {
	ID                int64            `json:"id"`
	Source            string           `json:"source"`
	RawTransactionID  string           `json:"raw_transaction_id,omitempty"`
	BatchID           string           `json:"batch_id,omitempty"`
	Date              string           `json:"date"`
	Description       string           `json:"description"`
	Amount            decimal.Decimal  `json:"amount"`
	CurrencyCode      string           `json:"currency_code"`
	BankAccountID     int64            `json:"bank_account_id,omitempty"`
	CounteragentID    string           `json:"counteragent_id,omitempty"`
	ProjectID         string           `json:"project_id,omitempty"`
	FinancialCodeID   string           `json:"financial_code_id,omitempty"`
	NominalCurrencyID string           `json:"nominal_currency_id,omitempty"`
	NominalAmount     *decimal.Decimal `json:"nominal_amount,omitempty"`
	PaymentID         string           `json:"payment_id,omitempty"`
	ProcessingCase    string           `json:"processing_case,omitempty"`
}

// CurrencySummaryResponse holds the totals of one currency.
type CurrencySummaryResponse struct {
	CurrencyCode string          `json:"currency_code"`
	Opening      decimal.Decimal `json:"opening"`
	Inflow       decimal.Decimal `json:"inflow"`
	Outflow      decimal.Decimal `json:"outflow"`
	Closing      decimal.Decimal `json:"closing"`
}

// LedgerFromUseCase converts a consolidated ledger page to response.
func LedgerFromUseCase(l *usecase.Ledger) *LedgerResponse {
	resp := &LedgerResponse{
		Entries:   make([]LedgerEntryResponse, len(l.Entries)),
		Summaries: make([]CurrencySummaryResponse, len(l.Summaries)),
		Matched:   l.Matched,
		Undated:   l.Undated,
	}

	for i, e := range l.Entries {
		entry := LedgerEntryResponse{
			ID:                e.ID.Flatten(),
			Source:            e.ID.Kind.String(),
			BatchID:           e.BatchID,
			Description:       e.Description,
			Amount:            e.Amount,
			CurrencyCode:      e.CurrencyCode,
			BankAccountID:     e.BankAccountID,
			CounteragentID:    e.CounteragentID,
			ProjectID:         e.ProjectID,
			FinancialCodeID:   e.FinancialCodeID,
			NominalCurrencyID: e.NominalCurrencyID,
			NominalAmount:     nullable(e.NominalAmount),
			PaymentID:         e.PaymentID,
			ProcessingCase:    e.ProcessingCase,
		}
		if e.RawTransactionID != uuid.Nil {
			entry.RawTransactionID = e.RawTransactionID.String()
		}
		if !e.Date.IsZero() {
			entry.Date = domain.DateKey(e.Date)
		}
		resp.Entries[i] = entry
	}

	for i, s := range l.Summaries {
		resp.Summaries[i] = CurrencySummaryResponse{
			CurrencyCode: s.CurrencyCode,
			Opening:      s.Opening,
			Inflow:       s.Inflow,
			Outflow:      s.Outflow,
			Closing:      s.Closing,
		}
	}

	return resp
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	// Remainder is set when partitions do not sum to the transaction amount.
	Remainder *decimal.Decimal `json:"remainder,omitempty"`
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
