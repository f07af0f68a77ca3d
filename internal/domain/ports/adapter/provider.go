package adapter

import (
	"context"
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
)

// ChargeRequest carries everything a gateway needs for a one-time charge.
// IdempotencyKey is forwarded to the provider's own idempotency mechanism
// where supported, so adapter-level retries are provider-level safe too.
type ChargeRequest struct {
	Amount         int64
	Currency       string
	Method         model.PaymentMethod
	CustomerRef    string
	IdempotencyKey string
	Meta           map[string]interface{}
}

// ChargeResult is the provider-agnostic outcome of a charge call. Mobile
// money gateways legitimately return StatusPending here; settlement arrives
// later via webhook.
type ChargeResult struct {
	ProviderTxID string
	Status       model.PaymentStatus // succeeded | pending | failed
}

type IntentRequest struct {
	Amount      int64
	Currency    string
	Method      model.PaymentMethod
	CustomerRef string
}

type IntentResult struct {
	ProviderRef  string
	ClientSecret string
	ExpiresAt    time.Time
}

type RefundRequest struct {
	ProviderTxID string
	Amount       int64 // 0 means full remaining amount at the provider
	Reason       string
}

type RefundResult struct {
	ProviderRefundID string
	Amount           int64
	RefundedAt       time.Time
}

type SubscriptionResult struct {
	ProviderSubID      string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// UnifiedEvent is the normalized form of a provider webhook notification.
// SubjectID is the provider-side id of the affected entity (transaction,
// intent reference or subscription id depending on Type).
type UnifiedEvent struct {
	ID         string // provider event id, used for redelivery convergence
	Type       string // e.g. "payment.succeeded"
	SubjectID  string
	NewStatus  string
	OccurredAt time.Time
}

// Normalized event types emitted by ParseWebhookEvent.
const (
	EventPaymentSucceeded    = "payment.succeeded"
	EventPaymentFailed       = "payment.failed"
	EventPaymentCanceled     = "payment.canceled"
	EventPaymentRefunded     = "payment.refunded"
	EventSubscriptionRenewed = "subscription.renewed"
	EventSubscriptionPastDue = "subscription.past_due"
	EventSubscriptionEnded   = "subscription.canceled"
)

// PaymentProvider is the hex port every gateway adapter implements. Callers
// never branch on provider identity outside the registry lookup; the
// capability set is identical across card, wallet and mobile-money variants.
type PaymentProvider interface {
	Name() string

	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)

	CreateSubscription(ctx context.Context, planRef, customerRef string) (SubscriptionResult, error)
	CancelSubscription(ctx context.Context, providerSubID string) error

	// VerifyWebhook authenticates raw webhook bytes against the signature
	// header using the per-provider shared secret. Implementations must use
	// constant-time comparison and reject stale timestamps.
	VerifyWebhook(payload []byte, sigHeader string) error
	ParseWebhookEvent(payload []byte) (UnifiedEvent, error)
}
