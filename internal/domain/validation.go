package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrAmountTooLarge   = errors.New("amount exceeds maximum allowed")
	ErrNoteTooLong      = errors.New("partition note exceeds limit")
	ErrInvalidPaymentID = errors.New("invalid payment id format")
	ErrInvalidTableName = errors.New("invalid source table name")
	ErrInvalidLimit     = errors.New("ledger limit must not be negative")
)

// Validation constants
const (
	MaxNoteLength      = 1000
	// MaxPartitionAmount is the largest value a NUMERIC(20,2) column holds.
	MaxPartitionAmount = "999999999999999999.99"
	// AmountScale is the number of decimal places amounts are stored with.
	AmountScale = 2
	MaxPaymentIDLength = 50
)

var (
	currencyRegex  = regexp.MustCompile(`^[A-Z]{3}$`)
	paymentIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	tableNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)
)

// ValidateCurrency checks that currency has the shape of an ISO 4217 code.
func ValidateCurrency(currency string) error {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}

	return nil
}

// ValidateAmount validates a partition magnitude. Callers round to AmountScale first, so
// anything below one cent arrives as zero.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositivePartition
	}

	maxAmount, _ := decimal.NewFromString(MaxPartitionAmount)
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxPartitionAmount)
	}

	return nil
}

// ValidateNote validates the free-text note of a partition
func ValidateNote(note string) error {
	if len(note) > MaxNoteLength {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrNoteTooLong, len(note), MaxNoteLength)
	}
	return nil
}

// ValidatePaymentID validates an explicitly entered payment reference. Empty is allowed.
func ValidatePaymentID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if len(id) > MaxPaymentIDLength || !paymentIDRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentID, id)
	}
	return nil
}

// ValidateTableName validates a raw source table name before it is used in a query.
func ValidateTableName(name string) error {
	if !tableNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	return nil
}

// ValidatePartitionInput validates one user-entered partition
func ValidatePartitionInput(p PartitionInput) error {
	if err := ValidateAmount(p.Amount); err != nil {
		return err
	}
	if err := ValidatePaymentID(p.PaymentID); err != nil {
		return err
	}
	return ValidateNote(p.Note)
}

// ValidateLedgerLimit rejects negative page sizes. Zero means no limit.
func ValidateLedgerLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return nil
}
