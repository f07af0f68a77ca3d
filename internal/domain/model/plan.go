package model

import (
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
)

type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// Plan is a recurring billing template. Once a live subscription references a
// plan it is treated as immutable; superseding a plan means creating a new one
// and deactivating the old.
type Plan struct {
	ID        string // UUID
	Name      string
	Amount    int64 // minor currency units
	Currency  string
	Interval  BillingInterval
	Active    bool
	CreatedAt time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// NewPlan validates and constructs a plan.
func NewPlan(id, name string, amount int64, currency string, interval BillingInterval) (*Plan, error) {
	if id == "" || name == "" || amount <= 0 || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	if interval != IntervalMonthly && interval != IntervalYearly {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		ID:        id,
		Name:      name,
		Amount:    amount,
		Currency:  currency,
		Interval:  interval,
		Active:    true,
		CreatedAt: time.Now(),
	}, nil
}

// PeriodEnd returns the end of a billing period that starts at from.
func (p *Plan) PeriodEnd(from time.Time) time.Time {
	if p.Interval == IntervalYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
