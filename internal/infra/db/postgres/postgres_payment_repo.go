package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*PostgresPaymentRepo)(nil)

type PostgresPaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPaymentRepo(pool *pgxpool.Pool) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{pool: pool}
}

const paymentCols = `
  id, provider, provider_tx_id, amount, refunded_amount, currency, method,
  status, idempotency_key, customer_ref, intent_id, meta, version, created_at, updated_at`

func (r *PostgresPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	meta, err := json.Marshal(p.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	const q = `
INSERT INTO payments (
  id, provider, provider_tx_id, amount, refunded_amount, currency, method,
  status, idempotency_key, customer_ref, intent_id, meta, version, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
) ON CONFLICT (id) DO UPDATE SET
  provider_tx_id=$3, refunded_amount=$5, status=$8, intent_id=$11, meta=$12,
  version=$13, updated_at=$15;
`
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.Provider, p.ProviderTxID, p.Amount, p.RefundedAmount, p.Currency, string(p.Method),
		string(p.Status), p.IdempotencyKey, p.CustomerRef, p.IntentID, meta, p.Version, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	var method, status string
	var meta []byte
	if err := row.Scan(&p.ID, &p.Provider, &p.ProviderTxID, &p.Amount, &p.RefundedAmount, &p.Currency, &method,
		&status, &p.IdempotencyKey, &p.CustomerRef, &p.IntentID, &meta, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Method = model.PaymentMethod(method)
	p.Status = model.PaymentStatus(status)
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &p.Meta)
	}
	return &p, nil
}

func (r *PostgresPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT` + paymentCols + ` FROM payments WHERE id=$1;`
	return scanPayment(pickRow(ctx, r.pool, tx, q, id))
}

func (r *PostgresPaymentRepo) FindByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (*model.Payment, error) {
	q := `SELECT` + paymentCols + ` FROM payments WHERE idempotency_key=$1;`
	return scanPayment(pickRow(ctx, r.pool, tx, q, key))
}

func (r *PostgresPaymentRepo) FindByProviderTxID(ctx context.Context, tx repository.Tx, provider, providerTxID string) (*model.Payment, error) {
	q := `SELECT` + paymentCols + ` FROM payments WHERE provider=$1 AND provider_tx_id=$2;`
	return scanPayment(pickRow(ctx, r.pool, tx, q, provider, providerTxID))
}

// UpdateStatus applies a guarded status write. The version predicate makes the
// write a compare-and-swap; zero rows affected with an existing id means a
// concurrent writer won.
func (r *PostgresPaymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, expectedVersion int, status model.PaymentStatus, providerTxID *string, refundedAmount *int64) error {
	const q = `
UPDATE payments SET
  status=$3,
  provider_tx_id=COALESCE($4, provider_tx_id),
  refunded_amount=COALESCE($5, refunded_amount),
  version=version+1,
  updated_at=NOW()
WHERE id=$1 AND version=$2;
`
	tag, err := execSQL(ctx, r.pool, tx, q, id, expectedVersion, string(status), providerTxID, refundedAmount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		row := pickRow(ctx, r.pool, tx, `SELECT 1 FROM payments WHERE id=$1;`, id)
		var one int
		if scanErr := row.Scan(&one); scanErr != nil {
			if scanErr == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			return scanErr
		}
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *PostgresPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	q := `SELECT` + paymentCols + `
  FROM payments WHERE status='pending' AND updated_at < $1
 ORDER BY updated_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SumByPeriod totals settled revenue for a period expressed as "YYYY-MM".
func (r *PostgresPaymentRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	const q = `
SELECT COALESCE(SUM(amount - refunded_amount), 0)
  FROM payments
 WHERE status IN ('succeeded','partially_refunded')
   AND to_char(created_at, 'YYYY-MM') = $1;`
	row := pickRow(ctx, r.pool, tx, q, period)
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum by period: %w", err)
	}
	return sum, nil
}
