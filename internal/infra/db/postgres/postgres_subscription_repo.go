package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)

type PostgresSubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSubscriptionRepo(pool *pgxpool.Pool) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{pool: pool}
}

const subscriptionCols = `
  id, user_ref, plan_id, provider, provider_sub_id, status,
  current_period_start, current_period_end, cancel_at_period_end,
  version, created_at, updated_at`

func (r *PostgresSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, user_ref, plan_id, provider, provider_sub_id, status,
  current_period_start, current_period_end, cancel_at_period_end,
  version, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (id) DO UPDATE SET
  status=$6, current_period_start=$7, current_period_end=$8,
  cancel_at_period_end=$9, version=$10, updated_at=$12;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserRef, s.PlanID, s.Provider, s.ProviderSubID, string(s.Status),
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd,
		s.Version, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	var status string
	if err := row.Scan(&s.ID, &s.UserRef, &s.PlanID, &s.Provider, &s.ProviderSubID, &status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd,
		&s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}

func (r *PostgresSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT` + subscriptionCols + ` FROM subscriptions WHERE id=$1;`
	return scanSubscription(pickRow(ctx, r.pool, tx, q, id))
}

func (r *PostgresSubscriptionRepo) FindByProviderSubID(ctx context.Context, tx repository.Tx, provider, providerSubID string) (*model.Subscription, error) {
	q := `SELECT` + subscriptionCols + ` FROM subscriptions WHERE provider=$1 AND provider_sub_id=$2;`
	return scanSubscription(pickRow(ctx, r.pool, tx, q, provider, providerSubID))
}

func (r *PostgresSubscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userRef string) ([]*model.Subscription, error) {
	q := `SELECT` + subscriptionCols + `
  FROM subscriptions WHERE user_ref=$1 AND status IN ('active','past_due')
 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresSubscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, expectedVersion int, status model.SubscriptionStatus) error {
	const q = `
UPDATE subscriptions SET status=$3, version=version+1, updated_at=NOW()
 WHERE id=$1 AND version=$2;
`
	tag, err := execSQL(ctx, r.pool, tx, q, id, expectedVersion, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		row := pickRow(ctx, r.pool, tx, `SELECT 1 FROM subscriptions WHERE id=$1;`, id)
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
