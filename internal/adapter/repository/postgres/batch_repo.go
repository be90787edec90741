package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/usecase"
)

const partitionColumns = `p.id, p.position, p.amount, COALESCE(p.payment_id, ''), COALESCE(p.counteragent_id, ''),
	COALESCE(p.project_id, ''), COALESCE(p.financial_code_id, ''), COALESCE(p.nominal_currency_id, ''),
	p.nominal_amount, COALESCE(p.note, '')`

// BatchRepository implements usecase.BatchRepository.
type BatchRepository struct {
	pool dbPool
}

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepository {
	return newBatchRepositoryWithPool(pool)
}

func newBatchRepositoryWithPool(pool dbPool) *BatchRepository {
	return &BatchRepository{pool: pool}
}

// GetByRawTransaction returns the batch of a raw transaction with its partitions in order.
func (r *BatchRepository) GetByRawTransaction(ctx context.Context, rawID uuid.UUID) (*domain.Batch, error) {
	var batch domain.Batch
	var createdAt pgtype.Timestamptz

	err := r.pool.QueryRow(ctx,
		`SELECT id, raw_transaction_id, created_at FROM batches WHERE raw_transaction_id = $1`,
		rawID,
	).Scan(&batch.ID, &batch.RawTransactionID, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, err
	}
	batch.CreatedAt = createdAt.Time

	rows, err := r.pool.Query(ctx,
		`SELECT `+partitionColumns+` FROM batch_partitions p WHERE p.batch_id = $1 ORDER BY p.position`,
		batch.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPartition(rows)
		if err != nil {
			return nil, err
		}
		batch.Partitions = append(batch.Partitions, p)
	}

	return &batch, rows.Err()
}

// ReplaceBatch deletes any batch of the raw transaction and inserts the new one inside tx.
// Partition ids are assigned by the database and written back onto batch.
func (r *BatchRepository) ReplaceBatch(ctx context.Context, tx usecase.Transaction, batch *domain.Batch) error {
	q := pgxTx(tx)

	if _, err := q.Exec(ctx, `DELETE FROM batches WHERE raw_transaction_id = $1`, batch.RawTransactionID); err != nil {
		return err
	}

	if _, err := q.Exec(ctx,
		`INSERT INTO batches (id, raw_transaction_id, created_at) VALUES ($1, $2, $3)`,
		batch.ID, batch.RawTransactionID, timeToPgTimestamptz(batch.CreatedAt),
	); err != nil {
		return err
	}

	for i := range batch.Partitions {
		p := &batch.Partitions[i]
		err := q.QueryRow(ctx, `
			INSERT INTO batch_partitions (
				batch_id, position, amount, payment_id, counteragent_id, project_id,
				financial_code_id, nominal_currency_id, nominal_amount, note
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			batch.ID,
			p.Position,
			decimalToNumeric(p.Amount),
			text(p.PaymentID),
			text(p.CounteragentID),
			text(p.ProjectID),
			text(p.FinancialCodeID),
			text(p.NominalCurrencyID),
			nullDecimalToNumeric(p.NominalAmount),
			text(p.Note),
		).Scan(&p.ID)
		if err != nil {
			return err
		}
	}

	return nil
}

// DeleteByRawTransaction removes the batch of a raw transaction; partitions cascade.
func (r *BatchRepository) DeleteByRawTransaction(ctx context.Context, tx usecase.Transaction, rawID uuid.UUID) error {
	tag, err := pgxTx(tx).Exec(ctx, `DELETE FROM batches WHERE raw_transaction_id = $1`, rawID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchNotFound
	}
	return nil
}

func listBatches(ctx context.Context, q dbPool) ([]*domain.Batch, error) {
	rows, err := q.Query(ctx, `
		SELECT b.id, b.raw_transaction_id, b.created_at, `+partitionColumns+`
		FROM batches b
		JOIN batch_partitions p ON p.batch_id = b.id
		ORDER BY b.id, p.position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out     []*domain.Batch
		current *domain.Batch
	)
	for rows.Next() {
		var (
			batchID   string
			rawID     uuid.UUID
			createdAt pgtype.Timestamptz
			p         domain.Partition
			amount    pgtype.Numeric
			nominal   pgtype.Numeric
		)
		err := rows.Scan(
			&batchID, &rawID, &createdAt,
			&p.ID, &p.Position, &amount, &p.PaymentID, &p.CounteragentID,
			&p.ProjectID, &p.FinancialCodeID, &p.NominalCurrencyID, &nominal, &p.Note,
		)
		if err != nil {
			return nil, err
		}
		p.Amount = numericToDecimal(amount)
		p.NominalAmount = numericToNullDecimal(nominal)

		if current == nil || current.ID != batchID {
			current = &domain.Batch{ID: batchID, RawTransactionID: rawID, CreatedAt: createdAt.Time}
			out = append(out, current)
		}
		current.Partitions = append(current.Partitions, p)
	}

	return out, rows.Err()
}

func scanPartition(row pgx.Row) (domain.Partition, error) {
	var (
		p       domain.Partition
		amount  pgtype.Numeric
		nominal pgtype.Numeric
	)

	err := row.Scan(
		&p.ID, &p.Position, &amount, &p.PaymentID, &p.CounteragentID,
		&p.ProjectID, &p.FinancialCodeID, &p.NominalCurrencyID, &nominal, &p.Note,
	)
	if err != nil {
		return domain.Partition{}, err
	}

	p.Amount = numericToDecimal(amount)
	p.NominalAmount = numericToNullDecimal(nominal)

	return p, nil
}
