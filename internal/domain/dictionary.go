package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency exchange rates are quoted against.
const BaseCurrency = "GEL"

// ParsingRule is an ordered override mapping a field condition or predicate script to
// classification fields. Either ColumnName+Condition or Script is set.
type ParsingRule struct {
	ID                int64
	ColumnName        string
	Condition         string
	Script            string
	CounteragentID    string
	FinancialCodeID   string
	NominalCurrencyID string
	PaymentID         string
	Active            bool
}

// HasColumnCondition reports whether the rule is a literal column rule.
func (r *ParsingRule) HasColumnCondition() bool {
	return strings.TrimSpace(r.ColumnName) != "" && strings.TrimSpace(r.Condition) != ""
}

// HasScript reports whether the rule is a predicate script rule.
func (r *ParsingRule) HasScript() bool {
	return strings.TrimSpace(r.Script) != ""
}

// PaymentSource tags where a payment dictionary entry came from.
type PaymentSource string

const (
	PaymentSourcePayment       PaymentSource = "payment"
	PaymentSourceSalaryAccrual PaymentSource = "salary_accrual"
)

// Payment is a payment or salary accrual the bank transactions can be attributed to.
type Payment struct {
	PaymentID       string
	CounteragentID  string
	ProjectID       string
	FinancialCodeID string
	CurrencyID      string
	Source          PaymentSource
}

// SalaryBase tracks the latest accrued period for one salary base key
// (the first SalaryBaseKeyLength characters of a salary accrual id).
type SalaryBase struct {
	Prefix      string
	LatestMonth int
	LatestYear  int
	Payment     Payment
}

// SalaryBaseKeyLength is the length of the salary accrual id prefix shared by all periods.
const SalaryBaseKeyLength = 20

// RateTable maps a date key (YYYY-MM-DD) to currency code → rate against BaseCurrency.
type RateTable map[string]map[string]decimal.Decimal

// Rate returns the rate of code on the given date key.
func (t RateTable) Rate(dateKey, code string) (decimal.Decimal, bool) {
	row, ok := t[dateKey]
	if !ok {
		return decimal.Zero, false
	}
	rate, ok := row[strings.ToUpper(code)]
	return rate, ok
}

// HasDate reports whether any rate is known for the date key.
func (t RateTable) HasDate(dateKey string) bool {
	_, ok := t[dateKey]
	return ok
}

// CounteragentEntry maps a taxpayer id to a counteragent.
type CounteragentEntry struct {
	TaxID          string
	CounteragentID string
}

// PaymentAlias redirects a duplicate payment id to its canonical id.
type PaymentAlias struct {
	DuplicateID string
	CanonicalID string
}

// Currency is one entry of the currency dictionary.
type Currency struct {
	ID   string
	Code string
}

// ExchangeRate is the rate of one currency against BaseCurrency on one day.
type ExchangeRate struct {
	Date string
	Code string
	Rate decimal.Decimal
}

// DictionarySource is the raw dictionary data loaded once per classification run.
type DictionarySource struct {
	Counteragents []CounteragentEntry
	Rules         []ParsingRule
	Payments      []Payment
	Aliases       []PaymentAlias
	Currencies    []Currency
	Rates         []ExchangeRate
}
