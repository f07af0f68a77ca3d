//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
)

func testPayment(key string) *model.Payment {
	p, _ := model.NewPayment(uuid.NewString(), model.CreatePaymentData{
		Amount:         2500,
		Currency:       "USD",
		Method:         model.MethodCard,
		CustomerRef:    "cus-1",
		IdempotencyKey: key,
		Meta:           map[string]interface{}{"order": "ord-1"},
	}, "cardnet")
	return p
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewPostgresPaymentRepo(testPool)

	t.Run("should save and find a payment", func(t *testing.T) {
		cleanup(t)
		p := testPayment("key-1")
		p.ProviderTxID = "ch_abc"

		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		byID, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if byID.IdempotencyKey != "key-1" || byID.Meta["order"] != "ord-1" {
			t.Fatalf("row round-trip mismatch: %+v", byID)
		}

		byKey, err := repo.FindByIdempotencyKey(ctx, nil, "key-1")
		if err != nil || byKey.ID != p.ID {
			t.Fatalf("FindByIdempotencyKey: %v", err)
		}

		byTx, err := repo.FindByProviderTxID(ctx, nil, "cardnet", "ch_abc")
		if err != nil || byTx.ID != p.ID {
			t.Fatalf("FindByProviderTxID: %v", err)
		}
	})

	t.Run("should honor caller cancellation on single-row reads", func(t *testing.T) {
		cleanup(t)
		p := testPayment("key-1")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("save: %v", err)
		}

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := repo.FindByID(canceled, nil, p.ID); err == nil {
			t.Fatal("expected an error from a canceled context")
		}
	})

	t.Run("should reject a second payment on the same idempotency key", func(t *testing.T) {
		cleanup(t)
		if err := repo.Save(ctx, nil, testPayment("key-1")); err != nil {
			t.Fatalf("first save: %v", err)
		}
		err := repo.Save(ctx, nil, testPayment("key-1"))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should update status only on the expected version", func(t *testing.T) {
		cleanup(t)
		p := testPayment("key-1")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("save: %v", err)
		}

		txID := "ch_new"
		if err := repo.UpdateStatus(ctx, nil, p.ID, p.Version, model.PaymentStatusPending, &txID, nil); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}

		updated, _ := repo.FindByID(ctx, nil, p.ID)
		if updated.Status != model.PaymentStatusPending || updated.ProviderTxID != "ch_new" {
			t.Fatalf("row not updated: %+v", updated)
		}
		if updated.Version != p.Version+1 {
			t.Fatalf("version %d, want %d", updated.Version, p.Version+1)
		}

		// stale version must conflict
		err := repo.UpdateStatus(ctx, nil, p.ID, p.Version, model.PaymentStatusSucceeded, nil, nil)
		if !errors.Is(err, domain.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}

		// unknown id is not found
		err = repo.UpdateStatus(ctx, nil, uuid.NewString(), 1, model.PaymentStatusSucceeded, nil, nil)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should list pending payments older than a cutoff", func(t *testing.T) {
		cleanup(t)

		old := testPayment("key-old")
		old.Status = model.PaymentStatusPending
		recent := testPayment("key-recent")
		recent.Status = model.PaymentStatusPending
		settled := testPayment("key-settled")
		settled.Status = model.PaymentStatusSucceeded

		for _, p := range []*model.Payment{old, recent, settled} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatalf("save: %v", err)
			}
		}
		// age the old rows behind the repo's back
		if _, err := testPool.Exec(ctx,
			`UPDATE payments SET updated_at = now() - interval '2 hours' WHERE id = ANY($1)`,
			[]string{old.ID, settled.ID}); err != nil {
			t.Fatalf("age rows: %v", err)
		}

		results, err := repo.ListPendingOlderThan(ctx, nil, time.Now().Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("ListPendingOlderThan failed: %v", err)
		}
		if len(results) != 1 || results[0].ID != old.ID {
			t.Fatalf("expected only the stale pending payment, got %d", len(results))
		}
	})

	t.Run("should sum settled revenue for a period", func(t *testing.T) {
		cleanup(t)

		a := testPayment("key-a")
		a.Status = model.PaymentStatusSucceeded
		b := testPayment("key-b")
		b.Status = model.PaymentStatusPartiallyRefunded
		b.RefundedAmount = 500
		c := testPayment("key-c") // still created; excluded

		for _, p := range []*model.Payment{a, b, c} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatalf("save: %v", err)
			}
		}

		period := time.Now().UTC().Format("2006-01")
		sum, err := repo.SumByPeriod(ctx, nil, period)
		if err != nil {
			t.Fatalf("SumByPeriod failed: %v", err)
		}
		if want := a.Amount + b.Amount - b.RefundedAmount; sum != want {
			t.Fatalf("sum %d, want %d", sum, want)
		}
	})
}
