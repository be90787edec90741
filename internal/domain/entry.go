package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceKind identifies the record family a ledger row is projected from.
type SourceKind int

const (
	SourceRaw SourceKind = iota + 1
	SourceBatch
	SourceFXLeg
	SourceBalance
)

func (k SourceKind) String() string {
	switch k {
	case SourceRaw:
		return "raw"
	case SourceBatch:
		return "batch"
	case SourceFXLeg:
		return "fx_leg"
	case SourceBalance:
		return "balance"
	default:
		return "unknown"
	}
}

// Offsets of the flattened synthetic id ranges.
const (
	RawTableOffset int64 = 10_000_000_000
	BatchOffset    int64 = 100_000_000_000_000
	FXLegOffset    int64 = 200_000_000_000_000
	// MaxRawTables keeps raw ranges below BatchOffset.
	MaxRawTables = 9_999
)

// SyntheticID tags a ledger row with its family and local id. Table is the index of the
// raw source table and is only meaningful for SourceRaw.
type SyntheticID struct {
	Kind    SourceKind
	Table   int
	LocalID int64
}

// Flatten encodes the id as one integer that never collides across families or tables.
func (id SyntheticID) Flatten() int64 {
	switch id.Kind {
	case SourceRaw:
		return int64(id.Table+1)*RawTableOffset + id.LocalID
	case SourceBatch:
		return BatchOffset + id.LocalID
	case SourceFXLeg:
		return FXLegOffset + id.LocalID
	case SourceBalance:
		return -id.LocalID
	default:
		return 0
	}
}

func (id SyntheticID) String() string {
	return fmt.Sprintf("%s:%d:%d", id.Kind, id.Table, id.LocalID)
}

// LedgerEntry is one row of the consolidated ledger. It is computed per query and never
// stored.
type LedgerEntry struct {
	ID                SyntheticID
	RawTransactionID  uuid.UUID
	BatchID           string
	Date              time.Time
	Description       string
	Amount            decimal.Decimal
	CurrencyCode      string
	BankAccountID     int64
	CounteragentID    string
	ProjectID         string
	FinancialCodeID   string
	NominalCurrencyID string
	NominalAmount     decimal.NullDecimal
	PaymentID         string
	ProcessingCase    string
}

// IsBalanceDepiction reports whether the row is a synthetic balance row.
func (e *LedgerEntry) IsBalanceDepiction() bool {
	return e.ID.Kind == SourceBalance
}

// CurrencySummary holds the totals of one currency over a ledger query.
type CurrencySummary struct {
	CurrencyCode string
	Opening      decimal.Decimal
	Inflow       decimal.Decimal
	Outflow      decimal.Decimal
	Closing      decimal.Decimal
}

// FXConversion is a same-day currency conversion between two accounts. It replaces the
// two raw records it pairs with a debit leg and a credit leg.
type FXConversion struct {
	ID            int64
	ValueDate     string
	FromAccountID int64
	ToAccountID   int64
	FromCurrency  string
	ToCurrency    string
	FromAmount    decimal.Decimal
	ToAmount      decimal.Decimal
	FromRawID     uuid.UUID
	ToRawID       uuid.UUID
	Description   string
}

// Legs returns the debit leg (outgoing FromAmount) and the credit leg (incoming ToAmount).
func (c *FXConversion) Legs(date time.Time) [2]LedgerEntry {
	return [2]LedgerEntry{
		{
			ID:               SyntheticID{Kind: SourceFXLeg, LocalID: c.ID * 2},
			RawTransactionID: c.FromRawID,
			Date:             date,
			Description:      c.Description,
			Amount:           c.FromAmount.Abs().Neg(),
			CurrencyCode:     c.FromCurrency,
			BankAccountID:    c.FromAccountID,
		},
		{
			ID:               SyntheticID{Kind: SourceFXLeg, LocalID: c.ID*2 + 1},
			RawTransactionID: c.ToRawID,
			Date:             date,
			Description:      c.Description,
			Amount:           c.ToAmount.Abs(),
			CurrencyCode:     c.ToCurrency,
			BankAccountID:    c.ToAccountID,
		},
	}
}
