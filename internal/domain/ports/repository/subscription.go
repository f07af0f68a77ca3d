package repository

import (
	"context"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
)

type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindByProviderSubID(ctx context.Context, tx Tx, provider, providerSubID string) (*model.Subscription, error)
	FindActiveByUser(ctx context.Context, tx Tx, userRef string) ([]*model.Subscription, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, expectedVersion int, status model.SubscriptionStatus) error
}

type PlanRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Plan, error)
	Deactivate(ctx context.Context, tx Tx, id string) error
}
