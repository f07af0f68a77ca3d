// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/metrics"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// Create sets up recurring billing for userRef on planID with the named
	// provider (empty = default). The plan must still be active.
	Create(ctx context.Context, userRef, planID, provider string) (*model.Subscription, error)
	// Cancel terminates a subscription, either immediately at the provider or
	// by flagging it to lapse at the current period end.
	Cancel(ctx context.Context, subID string, atPeriodEnd bool) (*model.Subscription, error)
	Get(ctx context.Context, subID string) (*model.Subscription, error)
	ListPlans(ctx context.Context) ([]*model.Plan, error)
}

type subscriptionUC struct {
	subs      repository.SubscriptionRepository
	plans     repository.PlanRepository
	locker    repository.Locker
	providers adapter.Registry
	set       Settings
	log       *zerolog.Logger
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	locker repository.Locker,
	providers adapter.Registry,
	set Settings,
	logger *zerolog.Logger,
) *subscriptionUC {
	set.normalize()
	return &subscriptionUC{subs: subs, plans: plans, locker: locker, providers: providers, set: set, log: logger}
}

func (u *subscriptionUC) Create(ctx context.Context, userRef, planID, provider string) (*model.Subscription, error) {
	if userRef == "" || planID == "" {
		return nil, domain.ErrInvalidArgument
	}
	plan, err := u.plans.FindByID(ctx, nil, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, domain.ErrPlanInactive
	}
	gw, err := u.providers.Resolve(provider)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.set.ProviderTimeout)
	result, provErr := gw.CreateSubscription(pctx, plan.ID, userRef)
	cancel()
	if provErr != nil {
		return nil, provErr
	}

	sub, err := model.NewSubscription(uuid.NewString(), userRef, plan, gw.Name(), result.ProviderSubID)
	if err != nil {
		return nil, err
	}
	if !result.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = result.CurrentPeriodStart
		sub.CurrentPeriodEnd = result.CurrentPeriodEnd
	}
	if err := u.subs.Save(ctx, nil, sub); err != nil {
		return nil, domain.ErrStorageUnavailable
	}
	metrics.IncSubscription("created")
	u.log.Info().Str("subscription_id", sub.ID).Str("plan_id", plan.ID).Str("provider", sub.Provider).Msg("subscription created")
	return sub, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, subID string, atPeriodEnd bool) (*model.Subscription, error) {
	if subID == "" {
		return nil, domain.ErrInvalidArgument
	}
	sub, err := u.subs.FindByID(ctx, nil, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubscriptionStatusCanceled {
		return sub, nil
	}

	if atPeriodEnd {
		token, err := u.locker.TryLock(ctx, "subscription:"+sub.ID, u.set.LockTTL)
		if err != nil {
			return nil, err
		}
		defer func() { _ = u.locker.Unlock(ctx, "subscription:"+sub.ID, token) }()

		sub, err = u.subs.FindByID(ctx, nil, sub.ID)
		if err != nil {
			return nil, err
		}
		sub.CancelAtPeriodEnd = true
		sub.UpdatedAt = time.Now()
		if err := u.subs.Save(ctx, nil, sub); err != nil {
			return nil, domain.ErrStorageUnavailable
		}
		return sub, nil
	}

	gw, err := u.providers.Resolve(sub.Provider)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.set.ProviderTimeout)
	provErr := gw.CancelSubscription(pctx, sub.ProviderSubID)
	cancel()
	if provErr != nil {
		if pe, ok := domain.AsProviderError(provErr); !ok || pe.Code != domain.ProviderErrNotFound {
			return nil, provErr
		}
		// already gone at the provider; fall through and record locally
	}

	token, err := u.locker.TryLock(ctx, "subscription:"+sub.ID, u.set.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(ctx, "subscription:"+sub.ID, token) }()

	sub, err = u.subs.FindByID(ctx, nil, sub.ID)
	if err != nil {
		return nil, err
	}
	prev := sub.Version
	changed, err := sub.Transition(model.SubscriptionStatusCanceled)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := u.subs.UpdateStatus(ctx, nil, sub.ID, prev, sub.Status); err != nil {
			return nil, err
		}
	}
	metrics.IncSubscription("canceled")
	return sub, nil
}

func (u *subscriptionUC) Get(ctx context.Context, subID string) (*model.Subscription, error) {
	if subID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.subs.FindByID(ctx, nil, subID)
}

func (u *subscriptionUC) ListPlans(ctx context.Context) ([]*model.Plan, error) {
	return u.plans.ListActive(ctx, nil)
}
