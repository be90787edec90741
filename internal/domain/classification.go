package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Case identifies one processing case flag. Values are 1-based to match the operator
// vocabulary ("case 1" .. "case 7").
type Case int

const (
	CaseCounteragentByTaxID  Case = 1 // counteragent resolved from tax id
	CaseNoTaxID              Case = 2 // record carries no counterparty tax id
	CaseUnknownTaxID         Case = 3 // tax id present but not in dictionary
	CasePaymentMatched       Case = 4 // payment id resolved and applied
	CasePaymentConflict      Case = 5 // payment resolved to a different counteragent
	CaseParsingRule          Case = 6 // parsing rule applied
	CaseCounteragentConflict Case = 7 // tax id resolved to a different counteragent than the rule
)

const caseCount = 7

// caseOrder is the fixed order flags appear in ProcessingCase.
var caseOrder = []Case{
	CaseCounteragentByTaxID, CaseNoTaxID, CaseUnknownTaxID,
	CaseParsingRule, CaseCounteragentConflict,
	CasePaymentMatched, CasePaymentConflict,
}

var caseDescriptions = map[Case]string{
	CaseCounteragentByTaxID:  "Case 1: counteragent identified by tax id",
	CaseNoTaxID:              "Case 2: no counterparty tax id",
	CaseUnknownTaxID:         "Case 3: tax id not in counteragent dictionary",
	CasePaymentMatched:       "Case 4: payment id matched",
	CasePaymentConflict:      "Case 5: payment counteragent conflict",
	CaseParsingRule:          "Case 6: parsing rule applied",
	CaseCounteragentConflict: "Case 7: tax id counteragent conflicts with parsing rule",
}

// String returns the human readable description of the case.
func (c Case) String() string {
	return caseDescriptions[c]
}

// AllCases lists the cases in processing-case order.
func AllCases() []Case {
	out := make([]Case, len(caseOrder))
	copy(out, caseOrder)
	return out
}

// CaseFlags is the set of fired processing cases. It is a value type.
type CaseFlags [caseCount]bool

// Has reports whether case c fired.
func (f CaseFlags) Has(c Case) bool {
	if c < 1 || int(c) > caseCount {
		return false
	}
	return f[c-1]
}

// With returns a copy of f with case c set.
func (f CaseFlags) With(c Case) CaseFlags {
	if c >= 1 && int(c) <= caseCount {
		f[c-1] = true
	}
	return f
}

// Describe joins the fired cases in fixed order.
func (f CaseFlags) Describe() string {
	parts := make([]string, 0, caseCount)
	for _, c := range caseOrder {
		if f.Has(c) {
			parts = append(parts, c.String())
		}
	}
	return strings.Join(parts, "\n")
}

// Classification holds the classification columns of a raw transaction. Empty strings
// and a zero AppliedRuleID mean "unset".
type Classification struct {
	CounteragentID    string
	ProjectID         string
	FinancialCodeID   string
	NominalCurrencyID string
	NominalAmount     decimal.NullDecimal
	PaymentID         string
	AppliedRuleID     int64
	Cases             CaseFlags
	ProcessingCase    string
}

// Equal compares two classifications column by column.
func (c Classification) Equal(o Classification) bool {
	if c.NominalAmount.Valid != o.NominalAmount.Valid {
		return false
	}
	if c.NominalAmount.Valid && !c.NominalAmount.Decimal.Equal(o.NominalAmount.Decimal) {
		return false
	}
	return c.CounteragentID == o.CounteragentID &&
		c.ProjectID == o.ProjectID &&
		c.FinancialCodeID == o.FinancialCodeID &&
		c.NominalCurrencyID == o.NominalCurrencyID &&
		c.PaymentID == o.PaymentID &&
		c.AppliedRuleID == o.AppliedRuleID &&
		c.Cases == o.Cases &&
		c.ProcessingCase == o.ProcessingCase
}
