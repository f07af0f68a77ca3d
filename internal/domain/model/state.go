package model

import "github.com/Le-Sourcier/servcraft-sub004/internal/domain"

// Legal forward edges of the payment status graph. Refund states are only
// reachable from succeeded (or a prior partial refund); everything else is
// terminal once reached.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:           {PaymentStatusPending},
	PaymentStatusPending:           {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCanceled},
	PaymentStatusSucceeded:         {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
}

var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive:  {SubscriptionStatusPastDue, SubscriptionStatusCanceled},
	SubscriptionStatusPastDue: {SubscriptionStatusActive, SubscriptionStatusCanceled},
}

// CanTransition reports whether from -> to is a legal payment edge.
// A same-state transition is allowed as a no-op so that redelivered provider
// events converge instead of erroring.
func CanTransition(from, to PaymentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionSubscription is the subscription-graph counterpart.
func CanTransitionSubscription(from, to SubscriptionStatus) bool {
	if from == to {
		return true
	}
	for _, next := range subscriptionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the payment to a new status, bumping the version so the
// repository's compare-and-swap can detect concurrent writers. It returns
// (false, nil) when the target equals the current state (idempotent no-op)
// and ErrInvalidTransition for any edge outside the graph, leaving the
// receiver untouched.
func (p *Payment) Transition(to PaymentStatus) (changed bool, err error) {
	if p.Status == to {
		return false, nil
	}
	if !CanTransition(p.Status, to) {
		return false, domain.ErrInvalidTransition
	}
	p.Status = to
	p.Version++
	return true, nil
}

// ApplyRefund validates the amount against the remaining refundable balance
// and moves the payment to refunded or partially_refunded.
func (p *Payment) ApplyRefund(amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidArgument
	}
	if p.Status != PaymentStatusSucceeded && p.Status != PaymentStatusPartiallyRefunded {
		return domain.ErrInvalidTransition
	}
	if amount > p.RefundableBalance() {
		return domain.ErrRefundExceedsBalance
	}
	p.RefundedAmount += amount
	if p.RefundedAmount == p.Amount {
		p.Status = PaymentStatusRefunded
	} else {
		p.Status = PaymentStatusPartiallyRefunded
	}
	p.Version++
	return nil
}

// Transition for intents shares the payment graph.
func (i *PaymentIntent) Transition(to PaymentStatus) (changed bool, err error) {
	if i.Status == to {
		return false, nil
	}
	if !CanTransition(i.Status, to) {
		return false, domain.ErrInvalidTransition
	}
	i.Status = to
	i.Version++
	return true, nil
}

// Transition moves the subscription along its own graph. Provider retry
// policy for past_due is observed, not enforced, here.
func (s *Subscription) Transition(to SubscriptionStatus) (changed bool, err error) {
	if s.Status == to {
		return false, nil
	}
	if !CanTransitionSubscription(s.Status, to) {
		return false, domain.ErrInvalidTransition
	}
	s.Status = to
	s.Version++
	return true, nil
}
