package usecase

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/domain"
)

// PartitionComposer helps drafting the partitions of one transaction interactively.
// Drafts hold positive magnitudes; Save applies the sign.
type PartitionComposer struct {
	total    decimal.Decimal
	drafts   []domain.PartitionInput
	autoFill bool
}

// NewPartitionComposer starts an empty draft for a transaction amount.
func NewPartitionComposer(amount decimal.Decimal) *PartitionComposer {
	return &PartitionComposer{
		total:    amount.Abs(),
		autoFill: true,
	}
}

// Add appends a draft partition.
func (c *PartitionComposer) Add(draft domain.PartitionInput) {
	c.drafts = append(c.drafts, draft)
}

// SetAmount changes the magnitude of the draft at index i.
func (c *PartitionComposer) SetAmount(i int, amount decimal.Decimal) bool {
	if i < 0 || i >= len(c.drafts) {
		return false
	}
	c.drafts[i].Amount = amount
	return true
}

// Remove drops the draft at index i.
func (c *PartitionComposer) Remove(i int) bool {
	if i < 0 || i >= len(c.drafts) {
		return false
	}
	c.drafts = append(c.drafts[:i], c.drafts[i+1:]...)
	return true
}

// Allocated is the sum of the drafted magnitudes.
func (c *PartitionComposer) Allocated() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range c.drafts {
		sum = sum.Add(d.Amount)
	}
	return sum
}

// Remaining is the magnitude still unallocated. It is negative on overage.
func (c *PartitionComposer) Remaining() decimal.Decimal {
	return c.total.Sub(c.Allocated())
}

// AutoFillEnabled reports whether AutoFillRemaining may still change drafts.
func (c *PartitionComposer) AutoFillEnabled() bool {
	return c.autoFill
}

// AutoFillRemaining gives a trailing empty draft the unallocated remainder. It reports
// whether a draft was changed.
func (c *PartitionComposer) AutoFillRemaining() bool {
	if !c.autoFill || len(c.drafts) == 0 {
		return false
	}

	last := &c.drafts[len(c.drafts)-1]
	if !last.Amount.IsZero() {
		return false
	}

	remaining := c.Remaining()
	if !remaining.IsPositive() {
		return false
	}

	last.Amount = remaining
	return true
}

// FromPaymentIDs replaces the drafts with one empty draft per payment id and turns
// auto-fill off for the rest of the composer's life. A single id receives the whole
// amount.
func (c *PartitionComposer) FromPaymentIDs(ids []string) {
	c.autoFill = false
	c.drafts = c.drafts[:0]

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		c.drafts = append(c.drafts, domain.PartitionInput{PaymentID: id})
	}

	if len(c.drafts) == 1 {
		c.drafts[0].Amount = c.total
	}
}

// Drafts returns a copy of the current drafts.
func (c *PartitionComposer) Drafts() []domain.PartitionInput {
	out := make([]domain.PartitionInput, len(c.drafts))
	copy(out, c.drafts)
	return out
}

// Validate checks the drafts against the transaction amount.
func (c *PartitionComposer) Validate() error {
	magnitudes := make([]decimal.Decimal, len(c.drafts))
	for i, d := range c.drafts {
		magnitudes[i] = d.Amount
	}
	return domain.ValidatePartitionAmounts(c.total, magnitudes)
}
