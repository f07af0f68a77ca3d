// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// CreatePayment runs the full charge flow: validate, reserve the
	// idempotency key, dispatch to the owning provider, apply the state
	// machine and persist. Replays with a committed key return the original
	// outcome without a second provider call.
	CreatePayment(ctx context.Context, data model.CreatePaymentData) (*model.Payment, error)
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	// CreateIntent stages a multi-step charge and returns the client secret
	// needed for client-side confirmation.
	CreateIntent(ctx context.Context, data model.CreatePaymentData) (*model.PaymentIntent, error)
	// ConfirmIntent settles a staged intent into at most one terminal Payment.
	ConfirmIntent(ctx context.Context, intentID string) (*model.Payment, error)
	// CancelIntent abandons an unsettled intent. Settlement webhooks arriving
	// after cancellation trigger a compensating refund in the webhook path.
	CancelIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error)
	// Refund returns amount (0 = full remaining balance) to the customer.
	Refund(ctx context.Context, paymentID string, amount int64) (*model.Payment, error)
}

// Settings carries the orchestrator knobs sourced from configuration.
type Settings struct {
	DefaultProvider     string
	SupportedCurrencies []string
	IntentTTL           time.Duration
	LockTTL             time.Duration
	ProviderTimeout     time.Duration
}

func (s *Settings) normalize() {
	if s.IntentTTL <= 0 {
		s.IntentTTL = time.Hour
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 10 * time.Second
	}
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = 30 * time.Second
	}
}

type paymentUC struct {
	payments  repository.PaymentRepository
	intents   repository.IntentRepository
	idem      repository.IdempotencyStore
	locker    repository.Locker
	providers adapter.Registry
	set       Settings
	log       *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	intents repository.IntentRepository,
	idem repository.IdempotencyStore,
	locker repository.Locker,
	providers adapter.Registry,
	set Settings,
	logger *zerolog.Logger,
) *paymentUC {
	set.normalize()
	return &paymentUC{
		payments:  payments,
		intents:   intents,
		idem:      idem,
		locker:    locker,
		providers: providers,
		set:       set,
		log:       logger,
	}
}

func (u *paymentUC) CreatePayment(ctx context.Context, data model.CreatePaymentData) (*model.Payment, error) {
	if err := data.Validate(u.set.SupportedCurrencies); err != nil {
		return nil, err
	}

	res, err := u.idem.Reserve(ctx, data.IdempotencyKey)
	if err != nil {
		return nil, domain.ErrStorageUnavailable
	}
	if !res.Fresh {
		return u.replay(ctx, data.IdempotencyKey, res)
	}

	// The payments table enforces one row per key, so an earlier attempt that
	// released its reservation (retryable failure) or whose committed entry
	// expired still owns the key. Re-dispatch on that row instead of inserting
	// a second one.
	existing, err := u.payments.FindByIdempotencyKey(ctx, nil, data.IdempotencyKey)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		_ = u.idem.Release(ctx, data.IdempotencyKey, res.Token)
		return nil, domain.ErrStorageUnavailable
	}
	if existing != nil && existing.Status != model.PaymentStatusCreated && existing.Status != model.PaymentStatusPending {
		// already settled: re-commit and replay, never charge again
		if err := u.idem.Commit(ctx, data.IdempotencyKey, repository.IdempotencyResult{
			PaymentID: existing.ID,
			Status:    string(existing.Status),
		}); err != nil {
			u.log.Error().Err(err).Str("payment_id", existing.ID).Msg("commit idempotency result")
		}
		metrics.IncIdempotencyReplay()
		return existing, nil
	}

	providerID := data.Provider
	if existing != nil {
		// the row keeps its owning provider for life
		providerID = existing.Provider
	}
	gw, err := u.providers.Resolve(providerID)
	if err != nil {
		_ = u.idem.Release(ctx, data.IdempotencyKey, res.Token)
		return nil, err
	}

	p := existing
	if p == nil {
		p, err = model.NewPayment(uuid.NewString(), data, gw.Name())
		if err != nil {
			_ = u.idem.Release(ctx, data.IdempotencyKey, res.Token)
			return nil, err
		}
		if err := u.payments.Save(ctx, nil, p); err != nil {
			_ = u.idem.Release(ctx, data.IdempotencyKey, res.Token)
			return nil, domain.ErrStorageUnavailable
		}
	}
	if err := u.markDispatched(ctx, p); err != nil {
		_ = u.idem.Release(ctx, data.IdempotencyKey, res.Token)
		return nil, err
	}

	pctx, cancel := u.providerCtx(ctx)
	result, chargeErr := gw.Charge(pctx, adapter.ChargeRequest{
		Amount:         data.Amount,
		Currency:       data.Currency,
		Method:         data.Method,
		CustomerRef:    data.CustomerRef,
		IdempotencyKey: data.IdempotencyKey,
		Meta:           data.Meta,
	})
	cancel()
	if chargeErr != nil {
		return u.settleChargeFailure(ctx, p, data.IdempotencyKey, res.Token, chargeErr)
	}

	settled, err := u.applyChargeResult(ctx, p.ID, result)
	if err != nil {
		// Charge was dispatched; never release the key or the caller could
		// double-charge. Leave resolution to the webhook path / reconciler.
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("apply charge result")
		return nil, err
	}
	p = settled
	if err := u.idem.Commit(ctx, data.IdempotencyKey, repository.IdempotencyResult{
		PaymentID: p.ID,
		Status:    string(p.Status),
	}); err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("commit idempotency result")
	}
	metrics.IncPayment(string(p.Status))
	if p.Status == model.PaymentStatusSucceeded {
		metrics.AddPaymentRevenue(p.Currency, p.Amount)
	}
	return p, nil
}

func (u *paymentUC) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.payments.FindByID(ctx, nil, id)
}

// replay returns the outcome committed by the first caller of this key.
func (u *paymentUC) replay(ctx context.Context, key string, res repository.Reservation) (*model.Payment, error) {
	if res.Result == nil {
		return nil, domain.ErrIdempotencyConflict
	}
	metrics.IncIdempotencyReplay()
	u.log.Debug().Str("idempotency_key", key).Msg("idempotency replay")

	var p *model.Payment
	if res.Result.PaymentID != "" {
		var err error
		p, err = u.payments.FindByID(ctx, nil, res.Result.PaymentID)
		if err != nil {
			return nil, err
		}
	}
	if res.Result.ErrorCode != "" {
		var provider string
		if p != nil {
			provider = p.Provider
		}
		return p, domain.NewProviderError(provider, domain.ProviderErrorCode(res.Result.ErrorCode), nil)
	}
	return p, nil
}

// markDispatched moves created -> pending before the network call so a crash
// mid-charge leaves a record the reconciler can pick up. A re-dispatched row
// is already pending; the no-op transition skips the write.
func (u *paymentUC) markDispatched(ctx context.Context, p *model.Payment) error {
	prev := p.Version
	changed, err := p.Transition(model.PaymentStatusPending)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := u.payments.UpdateStatus(ctx, nil, p.ID, prev, p.Status, nil, nil); err != nil {
		return domain.ErrStorageUnavailable
	}
	return nil
}

// settleChargeFailure decides the fate of a failed charge. A terminal failure
// persists the failed record for audit and commits the key so replays return
// the same decline. A retryable failure releases the key and leaves the row
// pending: the charge may have reached the provider, so webhooks and the
// reconciler stay the source of truth, and a retry on the same key
// re-dispatches on this row.
func (u *paymentUC) settleChargeFailure(ctx context.Context, p *model.Payment, key, token string, chargeErr error) (*model.Payment, error) {
	pe, ok := domain.AsProviderError(chargeErr)
	if ok && pe.Retryable() {
		_ = u.idem.Release(ctx, key, token)
		return p, chargeErr
	}

	if _, err := u.applyChargeResult(ctx, p.ID, adapter.ChargeResult{Status: model.PaymentStatusFailed}); err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("persist failed payment")
	}
	p.Status = model.PaymentStatusFailed
	metrics.IncPayment(string(model.PaymentStatusFailed))

	code := domain.ProviderErrNetwork
	if ok {
		code = pe.Code
	}
	if err := u.idem.Commit(ctx, key, repository.IdempotencyResult{
		PaymentID: p.ID,
		Status:    string(model.PaymentStatusFailed),
		ErrorCode: string(code),
	}); err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("commit idempotency failure")
	}
	return p, chargeErr
}

// applyChargeResult re-validates transition legality against the current
// persisted state under the per-entity lock. The provider round-trip happened
// lock-free, so a webhook may already have resolved the payment; the
// same-state no-op rule makes that convergent.
func (u *paymentUC) applyChargeResult(ctx context.Context, paymentID string, result adapter.ChargeResult) (*model.Payment, error) {
	token, err := u.locker.TryLock(ctx, "payment:"+paymentID, u.set.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(ctx, "payment:"+paymentID, token) }()

	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	prev := p.Version
	changed, err := p.Transition(result.Status)
	if err != nil {
		return nil, err
	}
	if result.ProviderTxID != "" {
		p.ProviderTxID = result.ProviderTxID
	}
	if !changed && result.ProviderTxID == "" {
		return p, nil
	}
	var txID *string
	if result.ProviderTxID != "" {
		txID = &result.ProviderTxID
	}
	if err := u.payments.UpdateStatus(ctx, nil, p.ID, prev, p.Status, txID, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// Refund returns amount to the customer. amount == 0 refunds the full
// remaining balance. The balance rule is checked before the provider call and
// re-checked under the entity lock afterwards, so a violation never mutates
// stored state.
func (u *paymentUC) Refund(ctx context.Context, paymentID string, amount int64) (*model.Payment, error) {
	if paymentID == "" || amount < 0 {
		return nil, domain.ErrInvalidArgument
	}
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		amount = p.RefundableBalance()
	}
	if p.Status != model.PaymentStatusSucceeded && p.Status != model.PaymentStatusPartiallyRefunded {
		return nil, domain.ErrInvalidTransition
	}
	if amount > p.RefundableBalance() {
		return nil, domain.ErrRefundExceedsBalance
	}

	gw, err := u.providers.Resolve(p.Provider)
	if err != nil {
		return nil, err
	}
	pctx, cancel := u.providerCtx(ctx)
	res, err := gw.Refund(pctx, adapter.RefundRequest{ProviderTxID: p.ProviderTxID, Amount: amount})
	cancel()
	if err != nil {
		return nil, err
	}
	if res.Amount > 0 {
		amount = res.Amount
	}

	token, err := u.locker.TryLock(ctx, "payment:"+p.ID, u.set.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(ctx, "payment:"+p.ID, token) }()

	p, err = u.payments.FindByID(ctx, nil, p.ID)
	if err != nil {
		return nil, err
	}
	prev := p.Version
	if err := p.ApplyRefund(amount); err != nil {
		return nil, err
	}
	refunded := p.RefundedAmount
	if err := u.payments.UpdateStatus(ctx, nil, p.ID, prev, p.Status, nil, &refunded); err != nil {
		return nil, err
	}
	metrics.IncRefund(p.Provider)
	u.log.Info().Str("payment_id", p.ID).Int64("amount", amount).Str("status", string(p.Status)).Msg("refund applied")
	return p, nil
}

// providerCtx detaches the provider call from the caller's cancellation: a
// dispatched charge cannot be un-sent, so a caller timeout only abandons the
// wait, not the charge.
func (u *paymentUC) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), u.set.ProviderTimeout)
}
