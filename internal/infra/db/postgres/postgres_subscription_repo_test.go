//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
)

func TestSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewPostgresSubscriptionRepo(testPool)
	planRepo := NewPostgresPlanRepo(testPool)

	setup := func(t *testing.T) *model.Plan {
		t.Helper()
		cleanup(t)
		plan, err := model.NewPlan(uuid.NewString(), "Pro", 2999, "USD", model.IntervalMonthly)
		if err != nil {
			t.Fatalf("plan: %v", err)
		}
		if err := planRepo.Save(ctx, nil, plan); err != nil {
			t.Fatalf("save plan: %v", err)
		}
		return plan
	}

	newSub := func(t *testing.T, plan *model.Plan, userRef string) *model.Subscription {
		t.Helper()
		sub, err := model.NewSubscription(uuid.NewString(), userRef, plan, "cardnet", "sub_"+userRef)
		if err != nil {
			t.Fatalf("subscription: %v", err)
		}
		return sub
	}

	t.Run("should save and find a subscription", func(t *testing.T) {
		plan := setup(t)
		sub := newSub(t, plan, "user-1")

		if err := repo.Save(ctx, nil, sub); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		byID, err := repo.FindByID(ctx, nil, sub.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if byID.PlanID != plan.ID || byID.Status != model.SubscriptionStatusActive {
			t.Fatalf("row round-trip mismatch: %+v", byID)
		}

		bySubID, err := repo.FindByProviderSubID(ctx, nil, "cardnet", sub.ProviderSubID)
		if err != nil || bySubID.ID != sub.ID {
			t.Fatalf("FindByProviderSubID: %v", err)
		}
	})

	t.Run("should list only live subscriptions for a user", func(t *testing.T) {
		plan := setup(t)

		active := newSub(t, plan, "user-1")
		pastDue := newSub(t, plan, "user-1")
		pastDue.ProviderSubID = "sub_user-1b"
		pastDue.Status = model.SubscriptionStatusPastDue
		canceled := newSub(t, plan, "user-1")
		canceled.ProviderSubID = "sub_user-1c"
		canceled.Status = model.SubscriptionStatusCanceled
		other := newSub(t, plan, "user-2")

		for _, s := range []*model.Subscription{active, pastDue, canceled, other} {
			if err := repo.Save(ctx, nil, s); err != nil {
				t.Fatalf("save: %v", err)
			}
		}

		live, err := repo.FindActiveByUser(ctx, nil, "user-1")
		if err != nil {
			t.Fatalf("FindActiveByUser failed: %v", err)
		}
		if len(live) != 2 {
			t.Fatalf("expected 2 live subscriptions, got %d", len(live))
		}
	})

	t.Run("should guard status updates with the version", func(t *testing.T) {
		plan := setup(t)
		sub := newSub(t, plan, "user-1")
		if err := repo.Save(ctx, nil, sub); err != nil {
			t.Fatalf("save: %v", err)
		}

		if err := repo.UpdateStatus(ctx, nil, sub.ID, sub.Version, model.SubscriptionStatusPastDue); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		err := repo.UpdateStatus(ctx, nil, sub.ID, sub.Version, model.SubscriptionStatusCanceled)
		if !errors.Is(err, domain.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})
}

func TestPlanRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewPostgresPlanRepo(testPool)

	t.Run("should list active plans ordered by amount", func(t *testing.T) {
		cleanup(t)

		pro, _ := model.NewPlan(uuid.NewString(), "Pro", 2999, "USD", model.IntervalMonthly)
		starter, _ := model.NewPlan(uuid.NewString(), "Starter", 999, "USD", model.IntervalMonthly)
		legacy, _ := model.NewPlan(uuid.NewString(), "Legacy", 499, "USD", model.IntervalMonthly)

		for _, p := range []*model.Plan{pro, starter, legacy} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatalf("save: %v", err)
			}
		}
		if err := repo.Deactivate(ctx, nil, legacy.ID); err != nil {
			t.Fatalf("deactivate: %v", err)
		}

		plans, err := repo.ListActive(ctx, nil)
		if err != nil {
			t.Fatalf("ListActive failed: %v", err)
		}
		if len(plans) != 2 || plans[0].ID != starter.ID || plans[1].ID != pro.ID {
			t.Fatalf("unexpected listing: %d plans", len(plans))
		}

		got, err := repo.FindByID(ctx, nil, legacy.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if got.Active {
			t.Fatal("deactivated plan still active")
		}
	})
}
