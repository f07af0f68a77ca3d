package model

import (
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
)

// PaymentIntent stages a possibly multi-step charge attempt. It shares the
// payment status graph and culminates in at most one terminal Payment. Intents
// are never deleted, only marked terminal, so the attempt trail survives for
// audit.
type PaymentIntent struct {
	ID           string // UUID
	Provider     string
	ProviderRef  string // provider-side intent reference
	ClientSecret string // handed to the client for confirmation
	Amount       int64
	Currency     string
	Method       PaymentMethod
	Status       PaymentStatus
	PaymentID    *string // set once the intent settles into a Payment
	CustomerRef  string
	ExpiresAt    time.Time
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the intent can no longer be confirmed.
func (i *PaymentIntent) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// NewPaymentIntent constructs an intent in the initial "created" state.
func NewPaymentIntent(id string, d CreatePaymentData, provider string, ttl time.Duration) (*PaymentIntent, error) {
	if id == "" || provider == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &PaymentIntent{
		ID:          id,
		Provider:    provider,
		Amount:      d.Amount,
		Currency:    d.Currency,
		Method:      d.Method,
		Status:      PaymentStatusCreated,
		CustomerRef: d.CustomerRef,
		ExpiresAt:   now.Add(ttl),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
