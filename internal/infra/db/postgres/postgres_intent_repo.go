package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
)

var _ repository.IntentRepository = (*PostgresIntentRepo)(nil)

type PostgresIntentRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresIntentRepo(pool *pgxpool.Pool) *PostgresIntentRepo {
	return &PostgresIntentRepo{pool: pool}
}

const intentCols = `
  id, provider, provider_ref, client_secret, amount, currency, method, status,
  payment_id, customer_ref, expires_at, version, created_at, updated_at`

func (r *PostgresIntentRepo) Save(ctx context.Context, tx repository.Tx, in *model.PaymentIntent) error {
	const q = `
INSERT INTO payment_intents (
  id, provider, provider_ref, client_secret, amount, currency, method, status,
  payment_id, customer_ref, expires_at, version, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (id) DO UPDATE SET
  provider_ref=$3, client_secret=$4, status=$8, payment_id=$9,
  version=$12, updated_at=$14;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		in.ID, in.Provider, in.ProviderRef, in.ClientSecret, in.Amount, in.Currency, string(in.Method), string(in.Status),
		in.PaymentID, in.CustomerRef, in.ExpiresAt, in.Version, in.CreatedAt, in.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func scanIntent(row pgx.Row) (*model.PaymentIntent, error) {
	var in model.PaymentIntent
	var method, status string
	if err := row.Scan(&in.ID, &in.Provider, &in.ProviderRef, &in.ClientSecret, &in.Amount, &in.Currency, &method, &status,
		&in.PaymentID, &in.CustomerRef, &in.ExpiresAt, &in.Version, &in.CreatedAt, &in.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	in.Method = model.PaymentMethod(method)
	in.Status = model.PaymentStatus(status)
	return &in, nil
}

func (r *PostgresIntentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentIntent, error) {
	q := `SELECT` + intentCols + ` FROM payment_intents WHERE id=$1;`
	return scanIntent(pickRow(ctx, r.pool, tx, q, id))
}

func (r *PostgresIntentRepo) FindByProviderRef(ctx context.Context, tx repository.Tx, provider, providerRef string) (*model.PaymentIntent, error) {
	q := `SELECT` + intentCols + ` FROM payment_intents WHERE provider=$1 AND provider_ref=$2;`
	return scanIntent(pickRow(ctx, r.pool, tx, q, provider, providerRef))
}

func (r *PostgresIntentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, expectedVersion int, status model.PaymentStatus, paymentID *string) error {
	const q = `
UPDATE payment_intents SET
  status=$3,
  payment_id=COALESCE($4, payment_id),
  version=version+1,
  updated_at=NOW()
WHERE id=$1 AND version=$2;
`
	tag, err := execSQL(ctx, r.pool, tx, q, id, expectedVersion, string(status), paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		row := pickRow(ctx, r.pool, tx, `SELECT 1 FROM payment_intents WHERE id=$1;`, id)
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
