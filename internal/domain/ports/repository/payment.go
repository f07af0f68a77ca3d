package repository

import (
	"context"
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByIdempotencyKey(ctx context.Context, tx Tx, key string) (*model.Payment, error)
	FindByProviderTxID(ctx context.Context, tx Tx, provider, providerTxID string) (*model.Payment, error)
	// UpdateStatus performs an optimistic compare-and-swap on the version
	// column: the write applies only when the stored version equals
	// expectedVersion. ErrVersionConflict signals a concurrent writer.
	UpdateStatus(ctx context.Context, tx Tx, id string, expectedVersion int, status model.PaymentStatus, providerTxID *string, refundedAmount *int64) error
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	SumByPeriod(ctx context.Context, tx Tx, period string) (int64, error)
}

// -----------------------------
// Payment intents
// -----------------------------

type IntentRepository interface {
	Save(ctx context.Context, tx Tx, in *model.PaymentIntent) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentIntent, error)
	FindByProviderRef(ctx context.Context, tx Tx, provider, providerRef string) (*model.PaymentIntent, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, expectedVersion int, status model.PaymentStatus, paymentID *string) error
}
