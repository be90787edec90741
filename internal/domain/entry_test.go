package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSyntheticID_Flatten(t *testing.T) {
	tests := []struct {
		name string
		id   SyntheticID
		want int64
	}{
		{"first raw table", SyntheticID{Kind: SourceRaw, Table: 0, LocalID: 42}, 10_000_000_042},
		{"second raw table", SyntheticID{Kind: SourceRaw, Table: 1, LocalID: 42}, 20_000_000_042},
		{"batch partition", SyntheticID{Kind: SourceBatch, LocalID: 7}, 100_000_000_000_007},
		{"fx leg", SyntheticID{Kind: SourceFXLeg, LocalID: 9}, 200_000_000_000_009},
		{"balance", SyntheticID{Kind: SourceBalance, LocalID: 3}, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.Flatten())
		})
	}
}

func TestSyntheticID_FamiliesDisjoint(t *testing.T) {
	lastRaw := SyntheticID{Kind: SourceRaw, Table: MaxRawTables - 1, LocalID: RawTableOffset - 1}
	firstBatch := SyntheticID{Kind: SourceBatch, LocalID: 1}
	assert.Less(t, lastRaw.Flatten(), firstBatch.Flatten())
}

func TestFXConversion_Legs(t *testing.T) {
	c := FXConversion{
		ID:           5,
		FromCurrency: "USD",
		ToCurrency:   "GEL",
		FromAmount:   decimal.NewFromInt(100),
		ToAmount:     decimal.NewFromInt(270),
	}
	legs := c.Legs(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, int64(10), legs[0].ID.LocalID)
	assert.Equal(t, int64(11), legs[1].ID.LocalID)
	assert.True(t, legs[0].Amount.Equal(decimal.NewFromInt(-100)))
	assert.True(t, legs[1].Amount.Equal(decimal.NewFromInt(270)))
	assert.Equal(t, "GEL", legs[1].CurrencyCode)
}

func TestBankAccount_DepictionEntry(t *testing.T) {
	acc := BankAccount{ID: 4, CurrencyCode: "GEL", Active: true, Balance: decimal.NewNullDecimal(decimal.NewFromInt(500))}
	assert.True(t, acc.HasStandingBalance())

	row := acc.DepictionEntry()
	assert.True(t, row.IsBalanceDepiction())
	assert.Equal(t, int64(-4), row.ID.Flatten())
	assert.Equal(t, BalanceDepictionDescription, row.Description)

	inactive := BankAccount{ID: 5, Balance: decimal.NewNullDecimal(decimal.NewFromInt(1))}
	assert.False(t, inactive.HasStandingBalance())
}
