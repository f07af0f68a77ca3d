package model

import (
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusCreated           PaymentStatus = "created"            // record exists, charge not yet dispatched
	PaymentStatusPending           PaymentStatus = "pending"            // dispatched to provider; awaiting resolution
	PaymentStatusSucceeded         PaymentStatus = "succeeded"          // settled at provider
	PaymentStatusFailed            PaymentStatus = "failed"             // declined or errored at provider
	PaymentStatusCanceled          PaymentStatus = "canceled"           // abandoned before settlement
	PaymentStatusRefunded          PaymentStatus = "refunded"           // full amount returned
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded" // some amount returned
)

type PaymentMethod string

const (
	MethodCard        PaymentMethod = "card"
	MethodWallet      PaymentMethod = "wallet"
	MethodMobileMoney PaymentMethod = "mobile_money"
)

// Payment records a one-time charge as reported by a provider. A payment is
// owned by exactly one provider for its entire lifetime and is unique per
// idempotency key. Amounts are integers in minor currency units; refunds
// accumulate in RefundedAmount rather than mutating Amount.
type Payment struct {
	ID             string // UUID
	Provider       string // owning adapter, e.g. "cardnet"
	ProviderTxID   string // provider-side transaction id
	Amount         int64
	RefundedAmount int64
	Currency       string
	Method         PaymentMethod
	Status         PaymentStatus
	IdempotencyKey string
	CustomerRef    string
	IntentID       *string // set when the payment settled a PaymentIntent
	Meta           map[string]interface{}
	Version        int // optimistic concurrency token, bumped on every status write
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RefundableBalance is the amount still eligible for refund.
func (p *Payment) RefundableBalance() int64 { return p.Amount - p.RefundedAmount }

// CreatePaymentData is the validated input for a charge request. It is
// consumed by the orchestrator and never persisted itself.
type CreatePaymentData struct {
	Amount         int64
	Currency       string
	Method         PaymentMethod
	Provider       string // empty selects the configured default
	CustomerRef    string
	IdempotencyKey string
	Meta           map[string]interface{}
}

// Validate enforces caller-input rules shared by all charge-like operations.
func (d CreatePaymentData) Validate(supportedCurrencies []string) error {
	if d.Amount <= 0 {
		return domain.ErrInvalidArgument
	}
	if d.IdempotencyKey == "" || d.CustomerRef == "" {
		return domain.ErrInvalidArgument
	}
	switch d.Method {
	case MethodCard, MethodWallet, MethodMobileMoney:
	default:
		return domain.ErrInvalidArgument
	}
	for _, c := range supportedCurrencies {
		if c == d.Currency {
			return nil
		}
	}
	return domain.ErrInvalidArgument
}

// NewPayment constructs a payment in the initial "created" state.
func NewPayment(id string, d CreatePaymentData, provider string) (*Payment, error) {
	if id == "" || provider == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Payment{
		ID:             id,
		Provider:       provider,
		Amount:         d.Amount,
		Currency:       d.Currency,
		Method:         d.Method,
		Status:         PaymentStatusCreated,
		IdempotencyKey: d.IdempotencyKey,
		CustomerRef:    d.CustomerRef,
		Meta:           d.Meta,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
