package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateCurrency(t *testing.T) {
	t.Parallel()

	if err := ValidateCurrency("gel"); err != nil {
		t.Fatalf("expected uppercase conversion to succeed, got %v", err)
	}

	if err := ValidateCurrency("U$D"); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	valid := decimal.NewFromFloat(100.25)
	if err := ValidateAmount(valid); err != nil {
		t.Fatalf("expected valid amount, got %v", err)
	}

	if err := ValidateAmount(decimal.Zero); !errors.Is(err, ErrNonPositivePartition) {
		t.Fatalf("expected ErrNonPositivePartition for zero, got %v", err)
	}

	if err := ValidateAmount(decimal.RequireFromString("0.01")); err != nil {
		t.Fatalf("expected one cent to be accepted, got %v", err)
	}

	if err := ValidateAmount(decimal.RequireFromString("5000000000000")); err != nil {
		t.Fatalf("expected amounts that fit the column to be accepted, got %v", err)
	}

	huge := decimal.RequireFromString(MaxPartitionAmount).Add(decimal.NewFromInt(1))
	if err := ValidateAmount(huge); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestValidateNote(t *testing.T) {
	t.Parallel()

	if err := ValidateNote(""); err != nil {
		t.Fatalf("expected empty note to be allowed, got %v", err)
	}

	if err := ValidateNote(strings.Repeat("x", MaxNoteLength+1)); !errors.Is(err, ErrNoteTooLong) {
		t.Fatalf("expected ErrNoteTooLong, got %v", err)
	}
}

func TestValidatePaymentID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "PAY-001", "NP_a1b2c3_NJ_d4e5f6_PRL032025"} {
		if err := ValidatePaymentID(id); err != nil {
			t.Fatalf("expected %q to be valid, got %v", id, err)
		}
	}

	for _, id := range []string{"pay 001", "pay;drop", strings.Repeat("a", MaxPaymentIDLength+1)} {
		if err := ValidatePaymentID(id); !errors.Is(err, ErrInvalidPaymentID) {
			t.Fatalf("expected ErrInvalidPaymentID for %q, got %v", id, err)
		}
	}
}

func TestValidateTableName(t *testing.T) {
	t.Parallel()

	if err := ValidateTableName("bog_gel_statements"); err != nil {
		t.Fatalf("expected valid table name, got %v", err)
	}

	if err := ValidateTableName("x; DROP TABLE y"); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
}

func TestValidateLedgerLimit(t *testing.T) {
	t.Parallel()

	for _, limit := range []int{0, 1, 5000} {
		if err := ValidateLedgerLimit(limit); err != nil {
			t.Fatalf("expected limit %d to be accepted, got %v", limit, err)
		}
	}

	if err := ValidateLedgerLimit(-1); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}
