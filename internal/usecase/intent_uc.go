// File: internal/usecase/intent_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/metrics"
)

// CreateIntent stages a charge with the provider and returns the client
// secret needed for client-side confirmation. Intent creation is charge-like:
// it reserves the idempotency key so a retried request returns the same
// intent instead of staging a second one.
func (u *paymentUC) CreateIntent(ctx context.Context, data model.CreatePaymentData) (*model.PaymentIntent, error) {
	if err := data.Validate(u.set.SupportedCurrencies); err != nil {
		return nil, err
	}

	res, err := u.idem.Reserve(ctx, data.IdempotencyKey)
	if err != nil {
		return nil, domain.ErrStorageUnavailable
	}
	if !res.Fresh {
		if res.Result == nil {
			return nil, domain.ErrIdempotencyConflict
		}
		metrics.IncIdempotencyReplay()
		if res.Result.IntentID == "" {
			return nil, domain.ErrIdempotencyConflict
		}
		return u.intents.FindByID(ctx, nil, res.Result.IntentID)
	}

	gw, err := u.providers.Resolve(data.Provider)
	if err != nil {
		_ = u.idem.Release(ctx, data.IdempotencyKey, res.Token)
		return nil, err
	}

	in, err := model.NewPaymentIntent(uuid.NewString(), data, gw.Name(), u.set.IntentTTL)
	if err != nil {
		_ = u.idem.Release(ctx, data.IdempotencyKey, res.Token)
		return nil, err
	}

	pctx, cancel := u.providerCtx(ctx)
	result, provErr := gw.CreateIntent(pctx, adapter.IntentRequest{
		Amount:      data.Amount,
		Currency:    data.Currency,
		Method:      data.Method,
		CustomerRef: data.CustomerRef,
	})
	cancel()
	if provErr != nil {
		_ = u.idem.Release(ctx, data.IdempotencyKey, res.Token)
		return nil, provErr
	}

	in.ProviderRef = result.ProviderRef
	in.ClientSecret = result.ClientSecret
	if !result.ExpiresAt.IsZero() {
		in.ExpiresAt = result.ExpiresAt
	}
	// staged at the provider; awaiting client confirmation
	if _, err := in.Transition(model.PaymentStatusPending); err != nil {
		return nil, err
	}
	if err := u.intents.Save(ctx, nil, in); err != nil {
		return nil, domain.ErrStorageUnavailable
	}
	if err := u.idem.Commit(ctx, data.IdempotencyKey, repository.IdempotencyResult{
		IntentID: in.ID,
		Status:   string(in.Status),
	}); err != nil {
		u.log.Error().Err(err).Str("intent_id", in.ID).Msg("commit intent idempotency result")
	}
	return in, nil
}

// ConfirmIntent settles a staged intent into its terminal Payment. The charge
// uses a key derived from the intent id, so repeated confirmations of the
// same intent cannot charge twice; an already-settled intent just returns its
// payment.
func (u *paymentUC) ConfirmIntent(ctx context.Context, intentID string) (*model.Payment, error) {
	if intentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	in, err := u.intents.FindByID(ctx, nil, intentID)
	if err != nil {
		return nil, err
	}
	if in.Status == model.PaymentStatusSucceeded && in.PaymentID != nil {
		return u.payments.FindByID(ctx, nil, *in.PaymentID)
	}
	if in.Status != model.PaymentStatusPending {
		return nil, domain.ErrInvalidTransition
	}
	if in.Expired(time.Now()) {
		if _, err := u.cancelIntentLocked(ctx, in.ID); err != nil {
			u.log.Error().Err(err).Str("intent_id", in.ID).Msg("expire intent")
		}
		return nil, domain.ErrIntentExpired
	}

	p, err := u.CreatePayment(ctx, model.CreatePaymentData{
		Amount:         in.Amount,
		Currency:       in.Currency,
		Method:         in.Method,
		Provider:       in.Provider,
		CustomerRef:    in.CustomerRef,
		IdempotencyKey: "intent:" + in.ID,
		Meta:           map[string]interface{}{"intent_id": in.ID, "provider_ref": in.ProviderRef},
	})
	if err != nil {
		// retryable failures leave the intent pending so the client can
		// confirm again; terminal failures close it
		if pe, ok := domain.AsProviderError(err); !ok || !pe.Retryable() {
			u.settleIntent(ctx, in.ID, model.PaymentStatusFailed, nil)
		}
		return p, err
	}

	target := p.Status
	if target == model.PaymentStatusPending {
		// mobile-money style settlement; the webhook path finishes the intent
		u.log.Info().Str("intent_id", in.ID).Str("payment_id", p.ID).Msg("intent awaiting async settlement")
	}
	u.settleIntent(ctx, in.ID, target, &p.ID)
	return p, nil
}

// CancelIntent abandons an unsettled intent. If provider settlement raced
// ahead of the cancellation, the webhook path compensates with a refund.
func (u *paymentUC) CancelIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error) {
	if intentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.cancelIntentLocked(ctx, intentID)
}

func (u *paymentUC) cancelIntentLocked(ctx context.Context, intentID string) (*model.PaymentIntent, error) {
	token, err := u.locker.TryLock(ctx, "intent:"+intentID, u.set.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(ctx, "intent:"+intentID, token) }()

	in, err := u.intents.FindByID(ctx, nil, intentID)
	if err != nil {
		return nil, err
	}
	prev := in.Version
	changed, err := in.Transition(model.PaymentStatusCanceled)
	if err != nil {
		return nil, err
	}
	if !changed {
		return in, nil
	}
	if err := u.intents.UpdateStatus(ctx, nil, in.ID, prev, in.Status, nil); err != nil {
		return nil, err
	}
	return in, nil
}

// settleIntent records the intent's terminal (or pending-settling) status and
// payment link under the entity lock; failures are logged, not surfaced, so
// the payment outcome still reaches the caller.
func (u *paymentUC) settleIntent(ctx context.Context, intentID string, status model.PaymentStatus, paymentID *string) {
	token, err := u.locker.TryLock(ctx, "intent:"+intentID, u.set.LockTTL)
	if err != nil {
		u.log.Error().Err(err).Str("intent_id", intentID).Msg("lock intent for settle")
		return
	}
	defer func() { _ = u.locker.Unlock(ctx, "intent:"+intentID, token) }()

	in, err := u.intents.FindByID(ctx, nil, intentID)
	if err != nil {
		u.log.Error().Err(err).Str("intent_id", intentID).Msg("load intent for settle")
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
