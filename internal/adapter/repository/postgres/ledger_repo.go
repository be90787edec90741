package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/usecase"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	pool dbPool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return newLedgerRepositoryWithPool(pool)
}

func newLedgerRepositoryWithPool(pool dbPool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// LoadSources reads every record family of the consolidated ledger unpaged. Value dates
// are free text, so filtering and paging happen after consolidation.
func (r *LedgerRepository) LoadSources(ctx context.Context) (*usecase.LedgerSources, error) {
	tables, err := listSourceTables(ctx, r.pool)
	if err != nil {
		return nil, fmt.Errorf("source tables: %w", err)
	}

	src := &usecase.LedgerSources{Tables: tables}

	for _, table := range tables {
		recs, err := listRawTransactions(ctx, r.pool, table, "")
		if err != nil {
			return nil, fmt.Errorf("raw transactions from %s: %w", table, err)
		}
		src.Transactions = append(src.Transactions, recs...)
	}

	if src.Batches, err = listBatches(ctx, r.pool); err != nil {
		return nil, fmt.Errorf("batches: %w", err)
	}
	if src.Conversions, err = r.conversions(ctx); err != nil {
		return nil, fmt.Errorf("fx conversions: %w", err)
	}
	if src.Accounts, err = r.accounts(ctx); err != nil {
		return nil, fmt.Errorf("bank accounts: %w", err)
	}

	return src, nil
}

func (r *LedgerRepository) conversions(ctx context.Context) ([]domain.FXConversion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, value_date, COALESCE(from_account_id, 0), COALESCE(to_account_id, 0),
		       from_currency, to_currency, from_amount, to_amount, from_raw_id, to_raw_id, description
		FROM fx_conversions
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FXConversion
	for rows.Next() {
		var (
			c                    domain.FXConversion
			fromAmount, toAmount pgtype.Numeric
		)
		err := rows.Scan(
			&c.ID, &c.ValueDate, &c.FromAccountID, &c.ToAccountID,
			&c.FromCurrency, &c.ToCurrency, &fromAmount, &toAmount,
			&c.FromRawID, &c.ToRawID, &c.Description,
		)
		if err != nil {
			return nil, err
		}
		c.FromAmount = numericToDecimal(fromAmount)
		c.ToAmount = numericToDecimal(toAmount)
		out = append(out, c)
	}

	return out, rows.Err()
}

func (r *LedgerRepository) accounts(ctx context.Context) ([]domain.BankAccount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, currency_code, balance, balance_date, active
		FROM bank_accounts
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BankAccount
	for rows.Next() {
		var (
			acc         domain.BankAccount
			balance     pgtype.Numeric
			balanceDate pgtype.Date
		)
		if err := rows.Scan(&acc.ID, &acc.Number, &acc.CurrencyCode, &balance, &balanceDate, &acc.Active); err != nil {
			return nil, err
		}
		acc.Balance = numericToNullDecimal(balance)
		if balanceDate.Valid {
			acc.BalanceDate = balanceDate.Time
		}
		out = append(out, acc)
	}

	return out, rows.Err()
}
