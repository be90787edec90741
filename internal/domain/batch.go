package domain

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// PartitionTolerance is the largest accepted difference between the partition sum and
// the transaction amount.
var PartitionTolerance = decimal.NewFromFloat(0.01)

var batchIDPattern = regexp.MustCompile(`(?i)^BTC_[0-9A-F]{6}_[0-9A-F]{2}_[0-9A-F]{6}$`)

// IsBatchID reports whether s follows the batch id naming pattern. Such a value in a
// payment reference is a placeholder, not a real payment.
func IsBatchID(s string) bool {
	return batchIDPattern.MatchString(strings.TrimSpace(s))
}

// NewBatchID builds a batch id in the BTC_XXXXXX_XX_XXXXXX form from a ULID.
func NewBatchID(id ulid.ULID) string {
	h := strings.ToUpper(hex.EncodeToString(id[:]))
	// use the entropy tail so ids minted in the same millisecond still differ
	return fmt.Sprintf("BTC_%s_%s_%s", h[18:24], h[24:26], h[26:32])
}

// Batch splits one raw transaction into ordered partitions and overrides its
// classification in the ledger.
type Batch struct {
	ID               string
	RawTransactionID uuid.UUID
	Partitions       []Partition
	CreatedAt        time.Time
}

// Partition is one portion of a raw transaction allocated to one payment. Amount is in
// account currency and carries the sign of the transaction.
type Partition struct {
	ID                int64
	Position          int
	Amount            decimal.Decimal
	PaymentID         string
	CounteragentID    string
	ProjectID         string
	FinancialCodeID   string
	NominalCurrencyID string
	NominalAmount     decimal.NullDecimal
	Note              string
}

// PartitionInput is a user-entered partition: a positive magnitude plus optional
// explicit overrides of the payment-derived fields.
type PartitionInput struct {
	Amount            decimal.Decimal
	PaymentID         string
	CounteragentID    string
	ProjectID         string
	FinancialCodeID   string
	NominalCurrencyID string
	Note              string
}

// ValidatePartitionAmounts checks that every magnitude is strictly positive and that the
// magnitudes sum to |total| within PartitionTolerance.
func ValidatePartitionAmounts(total decimal.Decimal, magnitudes []decimal.Decimal) error {
	if len(magnitudes) == 0 {
		return ErrEmptyBatch
	}
	if total.IsZero() {
		return ErrZeroAmountTransaction
	}

	allocated := decimal.Zero
	for i, m := range magnitudes {
		if !m.IsPositive() {
			return fmt.Errorf("%w: partition %d has amount %s", ErrNonPositivePartition, i+1, m.String())
		}
		allocated = allocated.Add(m)
	}

	expected := total.Abs()
	remainder := expected.Sub(allocated)
	if remainder.Abs().GreaterThan(PartitionTolerance) {
		return &PartitionSumError{
			Expected:  expected,
			Allocated: allocated,
			Remainder: remainder,
		}
	}

	return nil
}

// SignLike returns magnitude with the sign of reference.
func SignLike(magnitude, reference decimal.Decimal) decimal.Decimal {
	if reference.IsNegative() {
		return magnitude.Abs().Neg()
	}
	return magnitude.Abs()
}
