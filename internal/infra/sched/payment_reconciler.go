package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/metrics"
	"github.com/Le-Sourcier/servcraft-sub004/internal/usecase"
)

// PaymentReconciler is the safety net under the webhook path. Each sweep it
// re-drives webhook events that were recorded but never processed (worker
// crash, queue overflow) and flags payments stuck in pending longer than
// staleAfter so operators can chase the provider.
type PaymentReconciler struct {
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	payments   repository.PaymentRepository
	events     repository.WebhookEventRepository
	webhookUC  usecase.WebhookUseCase
	log        *zerolog.Logger
}

func NewPaymentReconciler(
	interval, staleAfter time.Duration,
	payments repository.PaymentRepository,
	events repository.WebhookEventRepository,
	webhookUC usecase.WebhookUseCase,
	logger *zerolog.Logger,
) *PaymentReconciler {
	recLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  100,
		payments:   payments,
		events:     events,
		webhookUC:  webhookUC,
		log:        &recLog,
	}
}

func (r *PaymentReconciler) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Msg("Starting payment reconciler")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *PaymentReconciler) sweep(ctx context.Context) {
	r.redriveEvents(ctx)
	r.flagStalePending(ctx)
}

func (r *PaymentReconciler) redriveEvents(ctx context.Context) {
	events, err := r.events.ListUnprocessed(ctx, nil, r.batchSize)
	if err != nil {
		r.log.Error().Err(err).Msg("list unprocessed events")
		return
	}
	for _, e := range events {
		if err := r.webhookUC.ProcessEvent(ctx, e); err != nil {
			r.log.Error().Err(err).Str("event_id", e.EventID).Str("provider", e.Provider).Msg("re-drive event")
			continue
		}
		metrics.IncWebhookEvent(e.Provider, "redriven")
	}
	if len(events) > 0 {
		r.log.Info().Int("count", len(events)).Msg("re-drove unprocessed webhook events")
	}
}

func (r *PaymentReconciler) flagStalePending(ctx context.Context) {
	cutoff := time.Now().Add(-r.staleAfter)
	stale, err := r.payments.ListPendingOlderThan(ctx, nil, cutoff, r.batchSize)
	if err != nil {
		r.log.Error().Err(err).Msg("list stale pending payments")
		return
	}
	for _, p := range stale {
		// Money may have moved at the provider without a webhook landing.
		// Never auto-fail; surface for manual or provider-side resolution.
		r.log.Warn().
			Str("payment_id", p.ID).
			Str("provider", p.Provider).
			Time("updated_at", p.UpdatedAt).
			Msg("payment stuck in pending")
	}
	if len(stale) > 0 {
		metrics.IncPayment("stale_pending")
	}
}
