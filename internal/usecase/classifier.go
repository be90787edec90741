package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/predicate"
)

// Observation is what classifying one record reported besides the classification itself.
type Observation struct {
	// Skipped is set when the value date could not be parsed. No classification is
	// produced and the record is left for the next run.
	Skipped    bool
	SkipReason error
	// MissingTaxID is the normalized tax id that had no counteragent (case 3).
	MissingTaxID   string
	PaymentMatched bool
	RateMissing    bool
}

// Classifier assigns classification columns to raw transactions. It holds no mutable
// state, so classifying the same record against the same snapshot always gives the same
// result.
type Classifier struct {
	dict      *Dictionaries
	converter *CurrencyConverter
}

// NewClassifier creates a classifier over one dictionary snapshot.
func NewClassifier(dict *Dictionaries) *Classifier {
	return &Classifier{
		dict:      dict,
		converter: dict.Converter(),
	}
}

// Classify recomputes every classification column of rec from scratch.
func (c *Classifier) Classify(rec *domain.RawTransaction) (domain.Classification, Observation) {
	var obs Observation

	valueDate, err := domain.ParseDate(rec.ValueDate)
	if err != nil {
		obs.Skipped = true
		obs.SkipReason = err
		return domain.Classification{}, obs
	}

	result := domain.Classification{}
	result = c.applyParsingRules(rec, result)
	result, obs.MissingTaxID = c.applyCounteragent(rec, result)
	result, obs.PaymentMatched = c.applyPaymentID(rec, result)
	result, obs.RateMissing = c.applyNominalAmount(rec, result, valueDate)
	result.ProcessingCase = result.Cases.Describe()

	return result, obs
}

// applyParsingRules applies the first matching parsing rule.
func (c *Classifier) applyParsingRules(rec *domain.RawTransaction, result domain.Classification) domain.Classification {
	values := fieldValues(rec)

	for i := range c.dict.rules {
		rule := &c.dict.rules[i]
		if !rule.matches(values) {
			continue
		}

		var payment domain.Payment
		if rule.rule.PaymentID != "" {
			resolved := c.dict.ResolveAlias(rule.rule.PaymentID)
			result.PaymentID = resolved
			if p, ok := c.dict.Payment(resolved); ok {
				payment = p
				result.PaymentID = p.PaymentID
			}
		}

		result.CounteragentID = firstNonEmpty(rule.rule.CounteragentID, payment.CounteragentID)
		result.FinancialCodeID = firstNonEmpty(rule.rule.FinancialCodeID, payment.FinancialCodeID)
		result.NominalCurrencyID = firstNonEmpty(rule.rule.NominalCurrencyID, payment.CurrencyID)
		result.ProjectID = payment.ProjectID
		result.AppliedRuleID = rule.rule.ID
		result.Cases = result.Cases.With(domain.CaseParsingRule)
		return result
	}

	return result
}

// applyCounteragent resolves the counteragent from the counterparty tax id. A
// counteragent set by a parsing rule is never replaced; a disagreeing tax id only flags
// the conflict. The second return value is the tax id missing from the dictionary.
func (c *Classifier) applyCounteragent(rec *domain.RawTransaction, result domain.Classification) (domain.Classification, string) {
	taxID := domain.NormalizeTaxID(rec.CounterpartyTaxID())

	if result.CounteragentID != "" {
		if taxID == "" {
			return result, ""
		}
		if id, ok := c.dict.Counteragent(taxID); ok && id != result.CounteragentID {
			result.Cases = result.Cases.With(domain.CaseCounteragentConflict)
		}
		return result, ""
	}

	if taxID == "" {
		result.Cases = result.Cases.With(domain.CaseNoTaxID)
		return result, ""
	}

	id, ok := c.dict.Counteragent(taxID)
	if !ok {
		result.Cases = result.Cases.With(domain.CaseUnknownTaxID)
		return result, taxID
	}

	result.CounteragentID = id
	result.Cases = result.Cases.With(domain.CaseCounteragentByTaxID)
	return result, ""
}

// applyPaymentID resolves a payment from the free-text note when no payment id is set
// yet. The second return value reports whether a payment was resolved, including when
// it conflicted with the counteragent.
func (c *Classifier) applyPaymentID(rec *domain.RawTransaction, result domain.Classification) (domain.Classification, bool) {
	if result.PaymentID != "" {
		return result, false
	}

	candidate, ok := ExtractPaymentID(rec.Information)
	if !ok {
		return result, false
	}

	paymentID, payment, ok := c.resolvePayment(candidate)
	if !ok {
		return result, false
	}

	if result.CounteragentID != "" && payment.CounteragentID != "" && payment.CounteragentID != result.CounteragentID {
		result.Cases = result.Cases.With(domain.CasePaymentConflict)
		return result, true
	}

	result.CounteragentID = firstNonEmpty(result.CounteragentID, payment.CounteragentID)
	result.FinancialCodeID = firstNonEmpty(result.FinancialCodeID, payment.FinancialCodeID)
	result.NominalCurrencyID = firstNonEmpty(result.NominalCurrencyID, payment.CurrencyID)
	result.ProjectID = firstNonEmpty(result.ProjectID, payment.ProjectID)
	result.PaymentID = paymentID
	result.Cases = result.Cases.With(domain.CasePaymentMatched)
	return result, true
}

// resolvePayment looks a candidate up directly and then through its salary base key.
// A candidate with an invalid period suffix resolves to the month after the latest
// accrued period of its base key.
func (c *Classifier) resolvePayment(candidate string) (string, domain.Payment, bool) {
	candidate = c.dict.ResolveAlias(candidate)

	if p, ok := c.dict.Payment(candidate); ok {
		if period, found := domain.ParseSalaryPeriod(candidate); !found || period.Valid() {
			return p.PaymentID, p, true
		}
	}

	base, ok := c.dict.SalaryBase(domain.SalaryBaseKey(candidate))
	if !ok {
		return "", domain.Payment{}, false
	}

	period, found := domain.ParseSalaryPeriod(candidate)
	if found && !period.Valid() {
		latest := domain.SalaryPeriod{Month: base.LatestMonth, Year: base.LatestYear}
		return base.Prefix + latest.Next().Suffix(), base.Payment, true
	}

	return candidate, base.Payment, true
}

// applyNominalAmount converts the record amount into the nominal currency.
func (c *Classifier) applyNominalAmount(rec *domain.RawTransaction, result domain.Classification, valueDate time.Time) (domain.Classification, bool) {
	if result.NominalCurrencyID == "" {
		return result, false
	}

	conv := c.converter.Convert(rec.Amount(), rec.AccountCurrency, result.NominalCurrencyID, valueDate)
	result.NominalAmount = decimal.NewNullDecimal(conv.Amount.Round(2))
	return result, conv.RateMissing
}

func fieldValues(rec *domain.RawTransaction) predicate.Values {
	var v predicate.Values
	v[predicate.FieldProductGroup] = rec.ProductGroup
	v[predicate.FieldNomination] = rec.Nomination
	v[predicate.FieldInformation] = rec.Information
	v[predicate.FieldDocKey] = rec.DocKey
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
