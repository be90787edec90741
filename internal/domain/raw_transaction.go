package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawTransactionNamespace is the UUID namespace for raw transaction identities.
var RawTransactionNamespace = uuid.MustParse("6f1b3c2e-8a4d-5e7f-9b0c-1d2e3f4a5b6c")

// RawTransaction is one normalized bank statement row. Everything except Classification
// is immutable once ingested.
type RawTransaction struct {
	ID            uuid.UUID
	SourceTable   string
	LocalID       int64
	BankAccountID int64

	// Natural key
	DocKey  string
	EntryID string

	SenderTaxID        string
	BeneficiaryTaxID   string
	SenderAccount      string
	BeneficiaryAccount string
	ProductGroup       string
	Nomination         string
	Information        string
	Debit              decimal.NullDecimal
	Credit             decimal.NullDecimal
	ValueDate          string
	AccountCurrency    string
	Classification     Classification
}

// NaturalKey returns the stable key a statement row is deduplicated by.
func (t *RawTransaction) NaturalKey() string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(t.SourceTable)),
		strings.TrimSpace(t.DocKey),
		strings.TrimSpace(t.EntryID),
	}, "|")
}

// ComputeID derives the deterministic identity of the row from its natural key.
func (t *RawTransaction) ComputeID() uuid.UUID {
	return uuid.NewSHA1(RawTransactionNamespace, []byte(t.NaturalKey()))
}

// IsIncoming reports whether money came into the account (debit absent or zero).
func (t *RawTransaction) IsIncoming() bool {
	return !t.Debit.Valid || t.Debit.Decimal.IsZero()
}

// CounterpartyTaxID returns the tax id of the other side of the transaction.
func (t *RawTransaction) CounterpartyTaxID() string {
	if t.IsIncoming() {
		return t.SenderTaxID
	}
	return t.BeneficiaryTaxID
}

// CounterpartyAccount returns the account number of the other side of the transaction.
func (t *RawTransaction) CounterpartyAccount() string {
	if t.IsIncoming() {
		return t.SenderAccount
	}
	return t.BeneficiaryAccount
}

// Amount returns the signed amount in account currency: credit minus debit.
func (t *RawTransaction) Amount() decimal.Decimal {
	amount := decimal.Zero
	if t.Credit.Valid {
		amount = amount.Add(t.Credit.Decimal)
	}
	if t.Debit.Valid {
		amount = amount.Sub(t.Debit.Decimal)
	}
	return amount
}
