package usecase

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/domain"
)

// Conversion is the outcome of a currency conversion.
type Conversion struct {
	Amount decimal.Decimal
	// Applied is false when the amount was returned unchanged.
	Applied bool
	// RateMissing is set when a conversion was needed but no usable rate existed, so the
	// amount fell back to identity.
	RateMissing bool
}

// CurrencyConverter converts amounts between currencies using one day's rates against
// domain.BaseCurrency.
type CurrencyConverter struct {
	rates  domain.RateTable
	codeOf func(currencyID string) string
}

// NewCurrencyConverter creates a converter. codeOf maps a currency id to its code.
func NewCurrencyConverter(rates domain.RateTable, codeOf func(currencyID string) string) *CurrencyConverter {
	if codeOf == nil {
		codeOf = func(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }
	}
	return &CurrencyConverter{rates: rates, codeOf: codeOf}
}

// Convert converts amount from the currency with code fromCode into the currency with id
// toCurrencyID on date. A missing target, equal currencies, an absent rate row and any
// missing or non-positive rate all return amount unchanged.
func (c *CurrencyConverter) Convert(amount decimal.Decimal, fromCode, toCurrencyID string, date time.Time) Conversion {
	identity := Conversion{Amount: amount}

	if strings.TrimSpace(toCurrencyID) == "" {
		return identity
	}

	from := strings.ToUpper(strings.TrimSpace(fromCode))
	to := c.codeOf(toCurrencyID)
	if from == to || from == "" {
		return identity
	}

	key := domain.DateKey(date)
	if !c.rates.HasDate(key) {
		identity.RateMissing = true
		return identity
	}

	switch {
	case from == domain.BaseCurrency:
		rateTo, ok := c.rate(key, to)
		if !ok {
			identity.RateMissing = true
			return identity
		}
		return Conversion{Amount: amount.Div(rateTo), Applied: true}

	case to == domain.BaseCurrency:
		rateFrom, ok := c.rate(key, from)
		if !ok {
			identity.RateMissing = true
			return identity
		}
		return Conversion{Amount: amount.Mul(rateFrom), Applied: true}

	default:
		rateFrom, okFrom := c.rate(key, from)
		rateTo, okTo := c.rate(key, to)
		if !okFrom || !okTo {
			identity.RateMissing = true
			return identity
		}
		return Conversion{Amount: amount.Mul(rateFrom).Div(rateTo), Applied: true}
	}
}

func (c *CurrencyConverter) rate(dateKey, code string) (decimal.Decimal, bool) {
	rate, ok := c.rates.Rate(dateKey, code)
	if !ok || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return rate, true
}
