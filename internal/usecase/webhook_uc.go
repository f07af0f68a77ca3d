// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/metrics"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/worker"
)

var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookUseCase interface {
	// HandleDelivery verifies, parses and durably records an inbound provider
	// notification, then queues it for processing. Only after Record succeeds
	// may the transport ack with 2xx; ErrStorageUnavailable must surface as a
	// retryable status so the provider redelivers.
	HandleDelivery(ctx context.Context, providerID string, payload []byte, sigHeader string) error
	// ProcessEvent applies one recorded event through the state machine
	// guard. Safe to call repeatedly for the same event id.
	ProcessEvent(ctx context.Context, e *repository.WebhookEvent) error
}

type webhookUC struct {
	events    repository.WebhookEventRepository
	payments  repository.PaymentRepository
	intents   repository.IntentRepository
	subs      repository.SubscriptionRepository
	plans     repository.PlanRepository
	locker    repository.Locker
	providers adapter.Registry
	queue     worker.Queue
	set       Settings
	log       *zerolog.Logger
}

func NewWebhookUseCase(
	events repository.WebhookEventRepository,
	payments repository.PaymentRepository,
	intents repository.IntentRepository,
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	locker repository.Locker,
	providers adapter.Registry,
	queue worker.Queue,
	set Settings,
	logger *zerolog.Logger,
) *webhookUC {
	set.normalize()
	return &webhookUC{
		events:    events,
		payments:  payments,
		intents:   intents,
		subs:      subs,
		plans:     plans,
		locker:    locker,
		providers: providers,
		queue:     queue,
		set:       set,
		log:       logger,
	}
}

func (u *webhookUC) HandleDelivery(ctx context.Context, providerID string, payload []byte, sigHeader string) error {
	gw, err := u.providers.Resolve(providerID)
	if err != nil {
		metrics.IncWebhookEvent(providerID, "unknown_provider")
		return err
	}
	if err := gw.VerifyWebhook(payload, sigHeader); err != nil {
		metrics.IncWebhookEvent(gw.Name(), "signature_invalid")
		u.log.Warn().Str("provider", gw.Name()).Msg("webhook signature rejected")
		return domain.ErrSignatureInvalid
	}
	evt, err := gw.ParseWebhookEvent(payload)
	if err != nil {
		metrics.IncWebhookEvent(gw.Name(), "malformed")
		return domain.ErrInvalidArgument
	}

	rec := &repository.WebhookEvent{
		ID:         ulid.Make().String(),
		Provider:   gw.Name(),
		EventID:    evt.ID,
		Type:       evt.Type,
		SubjectID:  evt.SubjectID,
		NewStatus:  evt.NewStatus,
		Payload:    payload,
		OccurredAt: evt.OccurredAt,
		ReceivedAt: time.Now(),
	}
	if err := u.events.Record(ctx, nil, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// redelivery of a recorded event: ack it, processing converges
			metrics.IncWebhookEvent(gw.Name(), "duplicate")
			return nil
		}
		metrics.IncWebhookEvent(gw.Name(), "storage_error")
		return domain.ErrStorageUnavailable
	}
	metrics.IncWebhookEvent(gw.Name(), "accepted")

	if err := u.queue.Submit(func(taskCtx context.Context) error {
		return u.ProcessEvent(taskCtx, rec)
	}); err != nil {
		// event is durable; the unprocessed-events sweep will retry it
		u.log.Warn().Err(err).Str("event_id", rec.ID).Msg("webhook queue saturated")
	}
	return nil
}

func (u *webhookUC) ProcessEvent(ctx context.Context, e *repository.WebhookEvent) error {
	var err error
	switch e.Type {
	case adapter.EventPaymentSucceeded, adapter.EventPaymentFailed,
		adapter.EventPaymentCanceled, adapter.EventPaymentRefunded:
		err = u.processPaymentEvent(ctx, e)
	case adapter.EventSubscriptionRenewed, adapter.EventSubscriptionPastDue,
		adapter.EventSubscriptionEnded:
		err = u.processSubscriptionEvent(ctx, e)
	default:
		u.log.Warn().Str("type", e.Type).Str("event_id", e.ID).Msg("unhandled webhook event type")
	}
	if err != nil {
		return err
	}
	if err := u.events.MarkProcessed(ctx, nil, e.ID, time.Now()); err != nil {
		u.log.Error().Err(err).Str("event_id", e.ID).Msg("mark webhook event processed")
	}
	return nil
}

func paymentEventTarget(eventType string) model.PaymentStatus {
	switch eventType {
	case adapter.EventPaymentSucceeded:
		return model.PaymentStatusSucceeded
	case adapter.EventPaymentFailed:
		return model.PaymentStatusFailed
	case adapter.EventPaymentCanceled:
		return model.PaymentStatusCanceled
	default:
		return model.PaymentStatusRefunded
	}
}

func (u *webhookUC) processPaymentEvent(ctx context.Context, e *repository.WebhookEvent) error {
	p, err := u.payments.FindByProviderTxID(ctx, nil, e.Provider, e.SubjectID)
	if errors.Is(err, domain.ErrNotFound) {
		return u.processOrphanPaymentEvent(ctx, e)
	}
	if err != nil {
		return err
	}

	token, err := u.locker.TryLock(ctx, "payment:"+p.ID, u.set.LockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = u.locker.Unlock(ctx, "payment:"+p.ID, token) }()

	p, err = u.payments.FindByID(ctx, nil, p.ID)
	if err != nil {
		return err
	}
	target := paymentEventTarget(e.Type)
	prev := p.Version
	var refunded *int64
	if target == model.PaymentStatusRefunded {
		if err := p.ApplyRefund(p.RefundableBalance()); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) && p.Status == model.PaymentStatusRefunded {
				return nil // redelivered refund event, already converged
			}
			return err
		}
		refunded = &p.RefundedAmount
	} else {
		changed, err := p.Transition(target)
		if err != nil {
			u.log.Warn().Str("payment_id", p.ID).Str("from", string(p.Status)).Str("to", string(target)).
				Str("event_id", e.EventID).Msg("webhook transition rejected")
			return nil // ordering bug or stale event; never redeliver forever
		}
		if !changed {
			return nil
		}
	}
	if err := u.payments.UpdateStatus(ctx, nil, p.ID, prev, p.Status, nil, refunded); err != nil {
		return err
	}
	metrics.IncPayment(string(p.Status))
	if p.Status == model.PaymentStatusSucceeded {
		metrics.AddPaymentRevenue(p.Currency, p.Amount)
		u.linkIntentSettlement(ctx, p)
	}
	return nil
}

// processOrphanPaymentEvent handles settlement notifications whose subject is
// an intent reference rather than a known payment: either the client
// confirmed directly with the provider, or the intent was canceled locally
// after provider-side authorization, which requires a compensating refund.
func (u *webhookUC) processOrphanPaymentEvent(ctx context.Context, e *repository.WebhookEvent) error {
	in, err := u.intents.FindByProviderRef(ctx, nil, e.Provider, e.SubjectID)
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Warn().Str("provider", e.Provider).Str("subject_id", e.SubjectID).
			Str("event_id", e.EventID).Msg("webhook for unknown subject")
		return nil
	}
	if err != nil {
		return err
	}
	if e.Type != adapter.EventPaymentSucceeded {
		u.settleIntentStatus(ctx, in.ID, paymentEventTarget(e.Type))
		return nil
	}

	if in.Status == model.PaymentStatusCanceled {
		return u.compensate(ctx, in, e)
	}

	// client-side confirmation settled at the provider; materialize the Payment
	p, err := model.NewPayment(uuid.NewString(), model.CreatePaymentData{
		Amount:         in.Amount,
		Currency:       in.Currency,
		Method:         in.Method,
		CustomerRef:    in.CustomerRef,
		IdempotencyKey: "intent:" + in.ID,
	}, in.Provider)
	if err != nil {
		return err
	}
	p.ProviderTxID = e.SubjectID
	p.IntentID = &in.ID
	if _, err := p.Transition(model.PaymentStatusPending); err != nil {
		return err
	}
	if _, err := p.Transition(model.PaymentStatusSucceeded); err != nil {
		return err
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil // concurrent settlement already recorded it
		}
		return err
	}
	u.settleIntentPayment(ctx, in.ID, p.ID)
	metrics.IncPayment(string(p.Status))
	metrics.AddPaymentRevenue(p.Currency, p.Amount)
	return nil
}

// compensate refunds a provider-settled charge whose intent was already
// canceled on our side. The money moved, so the only safe reconciliation is
// to send it back.
func (u *webhookUC) compensate(ctx context.Context, in *model.PaymentIntent, e *repository.WebhookEvent) error {
	gw, err := u.providers.Resolve(in.Provider)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.set.ProviderTimeout)
	_, refundErr := gw.Refund(pctx, adapter.RefundRequest{
		ProviderTxID: e.SubjectID,
		Amount:       in.Amount,
		Reason:       "intent canceled before settlement",
	})
	cancel()
	if refundErr != nil {
		if pe, ok := domain.AsProviderError(refundErr); ok && pe.Code == domain.ProviderErrAlreadyRefunded {
			return nil
		}
		return refundErr // keep the event unprocessed; sweep retries
	}
	metrics.IncRefund(in.Provider)
	u.log.Info().Str("intent_id", in.ID).Str("provider_tx_id", e.SubjectID).
		Msg("compensating refund for settlement after intent cancel")
	return nil
}

func (u *webhookUC) processSubscriptionEvent(ctx context.Context, e *repository.WebhookEvent) error {
	sub, err := u.subs.FindByProviderSubID(ctx, nil, e.Provider, e.SubjectID)
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Warn().Str("provider", e.Provider).Str("subject_id", e.SubjectID).Msg("webhook for unknown subscription")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := u.locker.TryLock(ctx, "subscription:"+sub.ID, u.set.LockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = u.locker.Unlock(ctx, "subscription:"+sub.ID, token) }()

	sub, err = u.subs.FindByID(ctx, nil, sub.ID)
	if err != nil {
		return err
	}

	switch e.Type {
	case adapter.EventSubscriptionRenewed:
		prev := sub.Status
		if _, err := sub.Transition(model.SubscriptionStatusActive); err != nil {
			return nil // canceled subscriptions do not renew
		}
		plan, err := u.plans.FindByID(ctx, nil, sub.PlanID)
		if err != nil {
			return err
		}
		sub.CurrentPeriodStart = sub.CurrentPeriodEnd
		sub.CurrentPeriodEnd = plan.PeriodEnd(sub.CurrentPeriodStart)
		sub.UpdatedAt = time.Now()
		if err := u.subs.Save(ctx, nil, sub); err != nil {
			return err
		}
		if prev == model.SubscriptionStatusPastDue {
			metrics.IncSubscription("recovered")
		} else {
			metrics.IncSubscription("renewed")
		}
	case adapter.EventSubscriptionPastDue:
		prev := sub.Version
		changed, err := sub.Transition(model.SubscriptionStatusPastDue)
		if err != nil || !changed {
			return nil
		}
		if err := u.subs.UpdateStatus(ctx, nil, sub.ID, prev, sub.Status); err != nil {
			return err
		}
		metrics.IncSubscription("past_due")
	case adapter.EventSubscriptionEnded:
		prev := sub.Version
		changed, err := sub.Transition(model.SubscriptionStatusCanceled)
		if err != nil || !changed {
			return nil
		}
		if err := u.subs.UpdateStatus(ctx, nil, sub.ID, prev, sub.Status); err != nil {
			return err
		}
		metrics.IncSubscription("canceled")
	}
	return nil
}

func (u *webhookUC) linkIntentSettlement(ctx context.Context, p *model.Payment) {
	if p.IntentID == nil {
		if p.Meta == nil {
			return
		}
		id, ok := p.Meta["intent_id"].(string)
		if !ok || id == "" {
			return
		}
		p.IntentID = &id
	}
	u.settleIntentPayment(ctx, *p.IntentID, p.ID)
}

func (u *webhookUC) settleIntentPayment(ctx context.Context, intentID, paymentID string) {
	u.updateIntent(ctx, intentID, model.PaymentStatusSucceeded, &paymentID)
}

func (u *webhookUC) settleIntentStatus(ctx context.Context, intentID string, status model.PaymentStatus) {
	u.updateIntent(ctx, intentID, status, nil)
}

func (u *webhookUC) updateIntent(ctx context.Context, intentID string, status model.PaymentStatus, paymentID *string) {
	token, err := u.locker.TryLock(ctx, "intent:"+intentID, u.set.LockTTL)
	if err != nil {
		u.log.Error().Err(err).Str("intent_id", intentID).Msg("lock intent")
		return
	}
	defer func() { _ = u.locker.Unlock(ctx, "intent:"+intentID, token) }()

	in, err := u.intents.FindByID(ctx, nil, intentID)
	if err != nil {
		u.log.Error().Err(err).Str("intent_id", intentID).Msg("load intent")
		return
	}
	prev := in.Version
	changed, err := in.Transition(status)
	if err != nil {
		u.log.Warn().Err(err).Str("intent_id", intentID).Str("target", string(status)).Msg("intent transition rejected")
		return
	}
	if !changed && paymentID == nil {
		return
	}
	if err := u.intents.UpdateStatus(ctx, nil, in.ID, prev, in.Status, paymentID); err != nil {
		u.log.Error().Err(err).Str("intent_id", intentID).Msg("persist intent status")
	}
}
