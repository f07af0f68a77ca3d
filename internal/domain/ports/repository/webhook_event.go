package repository

import (
	"context"
	"time"
)

// WebhookEvent is the durable record of an inbound provider notification.
// The webhook endpoint acknowledges 2xx only after one of these has been
// persisted, so a crash after the ack never silently drops an event.
type WebhookEvent struct {
	ID          string // ULID, assigned on receipt
	Provider    string
	EventID     string // provider event id; unique per provider
	Type        string
	SubjectID   string
	NewStatus   string
	Payload     []byte
	OccurredAt  time.Time
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

type WebhookEventRepository interface {
	// Record persists the event. A duplicate (provider, event_id) pair
	// returns ErrAlreadyExists; the caller still acks the delivery.
	Record(ctx context.Context, tx Tx, e *WebhookEvent) error
	MarkProcessed(ctx context.Context, tx Tx, id string, at time.Time) error
	ListUnprocessed(ctx context.Context, tx Tx, limit int) ([]*WebhookEvent, error)
}
