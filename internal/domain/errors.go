package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Raw transaction errors
	ErrTransactionNotFound = errors.New("raw transaction not found")
	ErrInvalidValueDate    = errors.New("value date cannot be parsed")

	// Batch errors
	ErrBatchNotFound         = errors.New("batch not found")
	ErrEmptyBatch            = errors.New("batch must contain at least one partition")
	ErrNonPositivePartition  = errors.New("partition amount must be positive")
	ErrPartitionSumMismatch  = errors.New("partition amounts do not sum to transaction amount")
	ErrZeroAmountTransaction = errors.New("cannot partition a zero-amount transaction")

	// Dictionary errors
	ErrInvalidRule = errors.New("invalid parsing rule")

	// Ledger query errors
	ErrInvalidDateFilter = errors.New("invalid date filter")

	// Classification run errors
	ErrReportNotFound = errors.New("classification run report not found")
)

// PartitionSumError reports how far a partition set is from the transaction amount.
// Remainder is positive when money is left unallocated and negative on overage.
type PartitionSumError struct {
	Expected  decimal.Decimal
	Allocated decimal.Decimal
	Remainder decimal.Decimal
}

func (e *PartitionSumError) Error() string {
	return fmt.Sprintf("%s: expected %s, allocated %s, remainder %s",
		ErrPartitionSumMismatch.Error(),
		e.Expected.StringFixed(2),
		e.Allocated.StringFixed(2),
		e.Remainder.StringFixed(2),
	)
}

func (e *PartitionSumError) Unwrap() error {
	return ErrPartitionSumMismatch
}
