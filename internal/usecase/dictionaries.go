package usecase

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/predicate"
)

// compiledRule is a parsing rule prepared once per snapshot.
type compiledRule struct {
	rule   domain.ParsingRule
	field  predicate.Field
	cond   string
	expr   *predicate.Expr
	column bool
}

func (r *compiledRule) matches(v predicate.Values) bool {
	if r.column {
		return strings.TrimSpace(v[r.field]) == r.cond
	}
	return r.expr != nil && r.expr.Eval(v)
}

// Dictionaries is the read-only dictionary snapshot a classification run works against.
// It is built once and never mutated, so one snapshot may be shared by concurrent readers.
type Dictionaries struct {
	counteragents map[string]string
	rules         []compiledRule
	payments      map[string]domain.Payment
	aliases       map[string]string
	salaryBases   map[string]domain.SalaryBase
	currencyCodes map[string]string
	rates         domain.RateTable
	invalidRules  []int64
}

// NewDictionaries builds a snapshot from raw dictionary data. Rules that cannot be
// compiled are kept out of matching and logged once.
func NewDictionaries(src *domain.DictionarySource, logger zerolog.Logger) *Dictionaries {
	if src == nil {
		src = &domain.DictionarySource{}
	}

	d := &Dictionaries{
		counteragents: make(map[string]string, len(src.Counteragents)),
		payments:      make(map[string]domain.Payment, len(src.Payments)),
		aliases:       make(map[string]string, len(src.Aliases)),
		salaryBases:   make(map[string]domain.SalaryBase),
		currencyCodes: make(map[string]string, len(src.Currencies)),
		rates:         make(domain.RateTable),
	}

	for _, c := range src.Counteragents {
		key := domain.NormalizeTaxID(c.TaxID)
		if key == "" || c.CounteragentID == "" {
			continue
		}
		d.counteragents[key] = c.CounteragentID
	}

	for _, a := range src.Aliases {
		dup := paymentKey(a.DuplicateID)
		if dup == "" || strings.TrimSpace(a.CanonicalID) == "" {
			continue
		}
		d.aliases[dup] = strings.TrimSpace(a.CanonicalID)
	}

	for _, p := range src.Payments {
		key := paymentKey(p.PaymentID)
		if key == "" {
			continue
		}
		p.PaymentID = strings.TrimSpace(p.PaymentID)
		d.payments[key] = p
		if p.Source == domain.PaymentSourceSalaryAccrual {
			d.indexSalaryAccrual(p)
		}
	}

	for _, c := range src.Currencies {
		d.currencyCodes[c.ID] = strings.ToUpper(strings.TrimSpace(c.Code))
	}

	for _, r := range src.Rates {
		date, err := domain.ParseDate(r.Date)
		if err != nil || !r.Rate.IsPositive() {
			continue
		}
		if err := domain.ValidateCurrency(r.Code); err != nil {
			logger.Debug().Err(err).Str("date", r.Date).Msg("exchange rate skipped")
			continue
		}
		key := domain.DateKey(date)
		row, ok := d.rates[key]
		if !ok {
			row = make(map[string]decimal.Decimal)
			d.rates[key] = row
		}
		row[strings.ToUpper(strings.TrimSpace(r.Code))] = r.Rate
	}

	for _, rule := range src.Rules {
		if !rule.Active {
			continue
		}
		compiled, err := compileRule(rule)
		if err != nil {
			d.invalidRules = append(d.invalidRules, rule.ID)
			logger.Warn().Err(err).Int64("rule_id", rule.ID).Msg("parsing rule disabled for this run")
			continue
		}
		d.rules = append(d.rules, compiled)
	}

	return d
}

func compileRule(rule domain.ParsingRule) (compiledRule, error) {
	if rule.HasColumnCondition() {
		field, ok := predicate.LookupField(rule.ColumnName)
		if !ok {
			return compiledRule{}, fmt.Errorf("%w: unknown column %q", domain.ErrInvalidRule, rule.ColumnName)
		}
		return compiledRule{rule: rule, field: field, cond: strings.TrimSpace(rule.Condition), column: true}, nil
	}

	if rule.HasScript() {
		expr, err := predicate.Compile(rule.Script)
		if err != nil {
			return compiledRule{}, fmt.Errorf("%w: %v", domain.ErrInvalidRule, err)
		}
		return compiledRule{rule: rule, expr: expr}, nil
	}

	return compiledRule{}, fmt.Errorf("%w: neither column condition nor script", domain.ErrInvalidRule)
}

func (d *Dictionaries) indexSalaryAccrual(p domain.Payment) {
	base := domain.SalaryBaseKey(p.PaymentID)
	if base == "" {
		return
	}
	period, found := domain.ParseSalaryPeriod(p.PaymentID)
	if !found || !period.Valid() {
		return
	}

	current, ok := d.salaryBases[base]
	latest := domain.SalaryPeriod{Month: current.LatestMonth, Year: current.LatestYear}
	if ok && !period.After(latest) {
		return
	}

	d.salaryBases[base] = domain.SalaryBase{
		Prefix:      domain.SalaryBasePrefix(p.PaymentID),
		LatestMonth: period.Month,
		LatestYear:  period.Year,
		Payment:     p,
	}
}

func paymentKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Counteragent looks up a counteragent by tax id. The id is normalized first.
func (d *Dictionaries) Counteragent(taxID string) (string, bool) {
	id, ok := d.counteragents[domain.NormalizeTaxID(taxID)]
	return id, ok
}

// ResolveAlias maps a duplicate payment id to its canonical id. Unknown ids are returned
// trimmed.
func (d *Dictionaries) ResolveAlias(id string) string {
	if canonical, ok := d.aliases[paymentKey(id)]; ok {
		return canonical
	}
	return strings.TrimSpace(id)
}

// Payment looks up a payment or salary accrual by exact id.
func (d *Dictionaries) Payment(id string) (domain.Payment, bool) {
	p, ok := d.payments[paymentKey(id)]
	return p, ok
}

// SalaryBase looks up the latest accrual of a salary base key.
func (d *Dictionaries) SalaryBase(baseKey string) (domain.SalaryBase, bool) {
	b, ok := d.salaryBases[baseKey]
	return b, ok
}

// CurrencyCode returns the code of a currency id. Ids missing from the currency
// dictionary are taken to be codes themselves.
func (d *Dictionaries) CurrencyCode(currencyID string) string {
	if code, ok := d.currencyCodes[currencyID]; ok {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(currencyID))
}

// Rates returns the exchange rate table of the snapshot.
func (d *Dictionaries) Rates() domain.RateTable {
	return d.rates
}

// InvalidRules lists the ids of active rules that failed to compile.
func (d *Dictionaries) InvalidRules() []int64 {
	return d.invalidRules
}

// Converter returns a currency converter over the snapshot's rates and currency codes.
func (d *Dictionaries) Converter() *CurrencyConverter {
	return NewCurrencyConverter(d.rates, d.CurrencyCode)
}
