package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/usecase"
)

// dbPool is the subset of *pgxpool.Pool the repositories use.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgxTx(tx usecase.Transaction) pgx.Tx {
	return tx.(*Tx).PgxTx()
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric

	_ = n.Scan(d.String())

	return n
}

func nullDecimalToNumeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return decimalToNumeric(d.Decimal)
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}

	d, _ := decimal.NewFromString(n.Int.String())
	if n.Exp != 0 {
		d = d.Shift(n.Exp)
	}

	return d
}

func numericToNullDecimal(n pgtype.Numeric) decimal.NullDecimal {
	if !n.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(numericToDecimal(n))
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// text maps the domain's empty-string "unset" onto SQL NULL.
func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func int8OrNull(v int64) pgtype.Int8 {
	return pgtype.Int8{Int64: v, Valid: v != 0}
}

// caseMask packs the case flags into the case_flags column, bit c-1 for case c.
func caseMask(f domain.CaseFlags) int16 {
	var mask int16
	for _, c := range domain.AllCases() {
		if f.Has(c) {
			mask |= 1 << (int(c) - 1)
		}
	}
	return mask
}

func flagsFromMask(mask int16) domain.CaseFlags {
	var f domain.CaseFlags
	for _, c := range domain.AllCases() {
		if mask&(1<<(int(c)-1)) != 0 {
			f = f.With(c)
		}
	}
	return f
}

// sanitizeTable validates a raw source table name and quotes it for interpolation.
func sanitizeTable(name string) (string, error) {
	if err := domain.ValidateTableName(name); err != nil {
		return "", err
	}
	return pgx.Identifier{name}.Sanitize(), nil
}
