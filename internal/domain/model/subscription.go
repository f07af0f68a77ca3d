package model

import (
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is a recurring billing relationship between a user and a plan.
// It always references the plan that existed at creation time, even if that
// plan is later deactivated. Subscriptions are terminated, never deleted.
type Subscription struct {
	ID                 string // UUID
	UserRef            string
	PlanID             string
	Provider           string
	ProviderSubID      string // provider-side subscription id
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewSubscription creates an active subscription whose first period is
// derived from the plan's billing interval.
func NewSubscription(id, userRef string, plan *Plan, provider, providerSubID string) (*Subscription, error) {
	if id == "" || userRef == "" || plan.IsZero() || provider == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Subscription{
		ID:                 id,
		UserRef:            userRef,
		PlanID:             plan.ID,
		Provider:           provider,
		ProviderSubID:      providerSubID,
		Status:             SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   plan.PeriodEnd(now),
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}
