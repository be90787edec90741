package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/reconledger/internal/domain"
)

// DictionaryRepository implements usecase.DictionaryRepository.
type DictionaryRepository struct {
	pool dbPool
}

// NewDictionaryRepository creates a new DictionaryRepository.
func NewDictionaryRepository(pool *pgxpool.Pool) *DictionaryRepository {
	return newDictionaryRepositoryWithPool(pool)
}

func newDictionaryRepositoryWithPool(pool dbPool) *DictionaryRepository {
	return &DictionaryRepository{pool: pool}
}

// Load reads every dictionary a classification run snapshots. Rules come back in
// definition order, which is the order they are matched in.
func (r *DictionaryRepository) Load(ctx context.Context) (*domain.DictionarySource, error) {
	var src domain.DictionarySource
	var err error

	if src.Counteragents, err = r.counteragents(ctx); err != nil {
		return nil, fmt.Errorf("counteragents: %w", err)
	}
	if src.Rules, err = r.rules(ctx); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	if src.Payments, err = r.payments(ctx); err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}
	if src.Aliases, err = r.aliases(ctx); err != nil {
		return nil, fmt.Errorf("payment aliases: %w", err)
	}
	if src.Currencies, err = r.currencies(ctx); err != nil {
		return nil, fmt.Errorf("currencies: %w", err)
	}
	if src.Rates, err = r.rates(ctx); err != nil {
		return nil, fmt.Errorf("exchange rates: %w", err)
	}

	return &src, nil
}

func (r *DictionaryRepository) counteragents(ctx context.Context) ([]domain.CounteragentEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT tax_id, counteragent_id FROM counteragents WHERE tax_id <> '' ORDER BY counteragent_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CounteragentEntry
	for rows.Next() {
		var e domain.CounteragentEntry
		if err := rows.Scan(&e.TaxID, &e.CounteragentID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

func (r *DictionaryRepository) rules(ctx context.Context) ([]domain.ParsingRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, COALESCE(column_name, ''), COALESCE(condition, ''), COALESCE(script, ''),
		       COALESCE(counteragent_id, ''), COALESCE(financial_code_id, ''),
		       COALESCE(nominal_currency_id, ''), COALESCE(payment_id, ''), active
		FROM parsing_rules
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ParsingRule
	for rows.Next() {
		var rule domain.ParsingRule
		err := rows.Scan(
			&rule.ID, &rule.ColumnName, &rule.Condition, &rule.Script,
			&rule.CounteragentID, &rule.FinancialCodeID, &rule.NominalCurrencyID, &rule.PaymentID,
			&rule.Active,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}

	return out, rows.Err()
}

func (r *DictionaryRepository) payments(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT payment_id, COALESCE(counteragent_id, ''), COALESCE(project_id, ''),
		       COALESCE(financial_code_id, ''), COALESCE(currency_id, ''), source
		FROM payments
		ORDER BY payment_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var p domain.Payment
		var source string
		if err := rows.Scan(&p.PaymentID, &p.CounteragentID, &p.ProjectID, &p.FinancialCodeID, &p.CurrencyID, &source); err != nil {
			return nil, err
		}
		p.Source = domain.PaymentSource(source)
		out = append(out, p)
	}

	return out, rows.Err()
}

func (r *DictionaryRepository) aliases(ctx context.Context) ([]domain.PaymentAlias, error) {
	rows, err := r.pool.Query(ctx, `SELECT duplicate_id, canonical_id FROM payment_aliases`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PaymentAlias
	for rows.Next() {
		var a domain.PaymentAlias
		if err := rows.Scan(&a.DuplicateID, &a.CanonicalID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

func (r *DictionaryRepository) currencies(ctx context.Context) ([]domain.Currency, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code FROM currencies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Currency
	for rows.Next() {
		var c domain.Currency
		if err := rows.Scan(&c.ID, &c.Code); err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

func (r *DictionaryRepository) rates(ctx context.Context) ([]domain.ExchangeRate, error) {
	rows, err := r.pool.Query(ctx, `SELECT rate_date, code, rate FROM exchange_rates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExchangeRate
	for rows.Next() {
		var (
			date pgtype.Date
			code string
			rate pgtype.Numeric
		)
		if err := rows.Scan(&date, &code, &rate); err != nil {
			return nil, err
		}
		out = append(out, domain.ExchangeRate{
			Date: date.Time.Format(domain.DateLayoutISO),
			Code: code,
			Rate: numericToDecimal(rate),
		})
	}

	return out, rows.Err()
}
