package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/usecase"
)

const rawColumns = `id, local_id, COALESCE(bank_account_id, 0), doc_key, entry_id,
	sender_tax_id, beneficiary_tax_id, sender_account, beneficiary_account,
	product_group, nomination, information, debit, credit, value_date, account_currency,
	COALESCE(counteragent_id, ''), COALESCE(project_id, ''), COALESCE(financial_code_id, ''),
	COALESCE(nominal_currency_id, ''), nominal_amount, COALESCE(payment_id, ''),
	COALESCE(applied_rule_id, 0), case_flags, COALESCE(processing_case, '')`

const listSourceTablesQuery = `SELECT table_name FROM raw_source_tables ORDER BY position`

// RawTransactionRepository implements usecase.RawTransactionRepository over the
// per-source raw tables listed in raw_source_tables.
type RawTransactionRepository struct {
	pool dbPool
}

// NewRawTransactionRepository creates a new RawTransactionRepository.
func NewRawTransactionRepository(pool *pgxpool.Pool) *RawTransactionRepository {
	return newRawTransactionRepositoryWithPool(pool)
}

func newRawTransactionRepositoryWithPool(pool dbPool) *RawTransactionRepository {
	return &RawTransactionRepository{pool: pool}
}

// SourceTables returns the registered raw tables in registry order.
func (r *RawTransactionRepository) SourceTables(ctx context.Context) ([]string, error) {
	return listSourceTables(ctx, r.pool)
}

// GetByID looks the id up in every registered raw table.
func (r *RawTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RawTransaction, error) {
	tables, err := listSourceTables(ctx, r.pool)
	if err != nil {
		return nil, err
	}

	for _, table := range tables {
		quoted, err := sanitizeTable(table)
		if err != nil {
			return nil, err
		}

		row := r.pool.QueryRow(ctx, `SELECT `+rawColumns+` FROM `+quoted+` WHERE id = $1`, id)
		rec, err := scanRawTransaction(row, table)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, err
		}
		return rec, nil
	}

	return nil, domain.ErrTransactionNotFound
}

// ListForClassification returns the records in scope ordered by table, then local id.
// A payment id scope selects rows already attributed to it or mentioning it in the note.
func (r *RawTransactionRepository) ListForClassification(ctx context.Context, scope usecase.Scope) ([]*domain.RawTransaction, error) {
	registered, err := listSourceTables(ctx, r.pool)
	if err != nil {
		return nil, err
	}

	tables := registered
	if len(scope.Tables) > 0 {
		known := make(map[string]struct{}, len(registered))
		for _, t := range registered {
			known[t] = struct{}{}
		}
		tables = make([]string, 0, len(scope.Tables))
		for _, t := range scope.Tables {
			t = strings.ToLower(strings.TrimSpace(t))
			if _, ok := known[t]; !ok {
				return nil, fmt.Errorf("%w: %q is not a registered source table", domain.ErrInvalidTableName, t)
			}
			tables = append(tables, t)
		}
	}

	var (
		conds []string
		args  []any
	)
	if len(scope.IDs) > 0 {
		args = append(args, scope.IDs)
		conds = append(conds, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if paymentID := strings.TrimSpace(scope.PaymentID); paymentID != "" {
		args = append(args, paymentID)
		conds = append(conds, fmt.Sprintf("(payment_id = $%d OR strpos(information, $%d) > 0)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var out []*domain.RawTransaction
	for _, table := range tables {
		recs, err := listRawTransactions(ctx, r.pool, table, where, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}

	return out, nil
}

// UpdateClassifications overwrites the classification columns of every record in the chunk.
func (r *RawTransactionRepository) UpdateClassifications(ctx context.Context, tx usecase.Transaction, updates []usecase.ClassificationUpdate) error {
	q := pgxTx(tx)

	for _, u := range updates {
		quoted, err := sanitizeTable(u.SourceTable)
		if err != nil {
			return err
		}

		c := u.Classification
		tag, err := q.Exec(ctx, `
			UPDATE `+quoted+` SET
				counteragent_id = $2,
				project_id = $3,
				financial_code_id = $4,
				nominal_currency_id = $5,
				nominal_amount = $6,
				payment_id = $7,
				applied_rule_id = $8,
				case_flags = $9,
				processing_case = $10
			WHERE id = $1`,
			u.ID,
			text(c.CounteragentID),
			text(c.ProjectID),
			text(c.FinancialCodeID),
			text(c.NominalCurrencyID),
			nullDecimalToNumeric(c.NominalAmount),
			text(c.PaymentID),
			int8OrNull(c.AppliedRuleID),
			caseMask(c.Cases),
			text(c.ProcessingCase),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s in %s", domain.ErrTransactionNotFound, u.ID, u.SourceTable)
		}
	}

	return nil
}

func listSourceTables(ctx context.Context, q dbPool) ([]string, error) {
	rows, err := q.Query(ctx, listSourceTablesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, strings.ToLower(name))
	}

	return tables, rows.Err()
}

func listRawTransactions(ctx context.Context, q dbPool, table, where string, args ...any) ([]*domain.RawTransaction, error) {
	quoted, err := sanitizeTable(table)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT `+rawColumns+` FROM `+quoted+where+` ORDER BY local_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RawTransaction
	for rows.Next() {
		rec, err := scanRawTransaction(rows, table)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

func scanRawTransaction(row pgx.Row, table string) (*domain.RawTransaction, error) {
	var (
		rec           domain.RawTransaction
		debit, credit pgtype.Numeric
		nominal       pgtype.Numeric
		mask          int16
	)

	err := row.Scan(
		&rec.ID,
		&rec.LocalID,
		&rec.BankAccountID,
		&rec.DocKey,
		&rec.EntryID,
		&rec.SenderTaxID,
		&rec.BeneficiaryTaxID,
		&rec.SenderAccount,
		&rec.BeneficiaryAccount,
		&rec.ProductGroup,
		&rec.Nomination,
		&rec.Information,
		&debit,
		&credit,
		&rec.ValueDate,
		&rec.AccountCurrency,
		&rec.Classification.CounteragentID,
		&rec.Classification.ProjectID,
		&rec.Classification.FinancialCodeID,
		&rec.Classification.NominalCurrencyID,
		&nominal,
		&rec.Classification.PaymentID,
		&rec.Classification.AppliedRuleID,
		&mask,
		&rec.Classification.ProcessingCase,
	)
	if err != nil {
		return nil, err
	}

	rec.SourceTable = table
	rec.AccountCurrency = strings.TrimSpace(rec.AccountCurrency)
	rec.Debit = numericToNullDecimal(debit)
	rec.Credit = numericToNullDecimal(credit)
	rec.Classification.NominalAmount = numericToNullDecimal(nominal)
	rec.Classification.Cases = flagsFromMask(mask)

	return &rec, nil
}
