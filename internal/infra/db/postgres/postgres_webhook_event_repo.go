package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
)

var _ repository.WebhookEventRepository = (*PostgresWebhookEventRepo)(nil)

type PostgresWebhookEventRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresWebhookEventRepo(pool *pgxpool.Pool) *PostgresWebhookEventRepo {
	return &PostgresWebhookEventRepo{pool: pool}
}

// Record persists the delivery. The unique (provider, event_id) index is what
// makes redeliveries detectable; a violation maps to ErrAlreadyExists.
func (r *PostgresWebhookEventRepo) Record(ctx context.Context, tx repository.Tx, e *repository.WebhookEvent) error {
	const q = `
INSERT INTO webhook_events (
  id, provider, event_id, type, subject_id, new_status, payload,
  occurred_at, received_at, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);
`
	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.Provider, e.EventID, e.Type, e.SubjectID, e.NewStatus, e.Payload,
		e.OccurredAt, e.ReceivedAt, e.ProcessedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *PostgresWebhookEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE webhook_events SET processed_at=$2 WHERE id=$1 AND processed_at IS NULL;`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresWebhookEventRepo) ListUnprocessed(ctx context.Context, tx repository.Tx, limit int) ([]*repository.WebhookEvent, error) {
	const q = `
SELECT id, provider, event_id, type, subject_id, new_status, payload,
       occurred_at, received_at, processed_at
  FROM webhook_events
 WHERE processed_at IS NULL
 ORDER BY received_at ASC LIMIT $1;
`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*repository.WebhookEvent
	for rows.Next() {
		var e repository.WebhookEvent
		if err := rows.Scan(&e.ID, &e.Provider, &e.EventID, &e.Type, &e.SubjectID, &e.NewStatus, &e.Payload,
			&e.OccurredAt, &e.ReceivedAt, &e.ProcessedAt); err != nil {
			if err == pgx.ErrNoRows {
				return nil, domain.ErrNotFound
			}
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
