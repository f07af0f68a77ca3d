//go:build !integration

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
)

func newTestCardNet(t *testing.T, handler http.HandlerFunc) *CardNetGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw, err := NewCardNetGateway("sk_test", srv.URL, "whsec_test", DefaultTolerance)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	return gw
}

func TestCardNetCharge(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards the idempotency key and settles", func(t *testing.T) {
		var gotKey, gotAuth string
		gw := newTestCardNet(t, func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("Idempotency-Key")
			gotAuth = r.Header.Get("Authorization")
			if r.URL.Path != "/v1/charges" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "ch_1", "status": "succeeded"})
		})

		res, err := gw.Charge(ctx, adapter.ChargeRequest{
			Amount: 2500, Currency: "USD", Method: model.MethodCard,
			CustomerRef: "cus_1", IdempotencyKey: "idem-1",
		})
		if err != nil {
			t.Fatalf("charge: %v", err)
		}
		if res.ProviderTxID != "ch_1" || res.Status != model.PaymentStatusSucceeded {
			t.Fatalf("unexpected result: %+v", res)
		}
		if gotKey != "idem-1" {
			t.Errorf("idempotency key not forwarded, got %q", gotKey)
		}
		if gotAuth != "Bearer sk_test" {
			t.Errorf("auth header %q", gotAuth)
		}
	})

	t.Run("classifies a decline as terminal", func(t *testing.T) {
		gw := newTestCardNet(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "card_declined", "message": "insufficient funds"},
			})
		})

		_, err := gw.Charge(ctx, adapter.ChargeRequest{Amount: 100, Currency: "USD", Method: model.MethodCard})
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProviderError, got %v", err)
		}
		if pe.Code != domain.ProviderErrDeclined || pe.Retryable() {
			t.Fatalf("decline misclassified: %+v", pe)
		}
	})

	t.Run("classifies 429 as retryable", func(t *testing.T) {
		gw := newTestCardNet(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := gw.Charge(ctx, adapter.ChargeRequest{Amount: 100, Currency: "USD", Method: model.MethodCard})
		var pe *domain.ProviderError
		if !errors.As(err, &pe) || pe.Code != domain.ProviderErrRateLimited || !pe.Retryable() {
			t.Fatalf("429 misclassified: %v", err)
		}
	})

	t.Run("connection failure is a retryable network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close() // dead endpoint
		gw, err := NewCardNetGateway("sk_test", srv.URL, "whsec_test", DefaultTolerance)
		if err != nil {
			t.Fatalf("gateway: %v", err)
		}

		_, err = gw.Charge(ctx, adapter.ChargeRequest{Amount: 100, Currency: "USD", Method: model.MethodCard})
		var pe *domain.ProviderError
		if !errors.As(err, &pe) || pe.Code != domain.ProviderErrNetwork || !pe.Retryable() {
			t.Fatalf("dead endpoint misclassified: %v", err)
		}
	})
}

func TestCardNetRefund(t *testing.T) {
	gw := newTestCardNet(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/refunds" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["charge"] != "ch_1" {
			t.Errorf("charge ref %v", body["charge"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "re_1", "amount": 500, "created": time.Now().Unix()})
	})

	res, err := gw.Refund(context.Background(), adapter.RefundRequest{ProviderTxID: "ch_1", Amount: 500})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.ProviderRefundID != "re_1" || res.Amount != 500 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCardNetWebhook(t *testing.T) {
	gw, err := NewCardNetGateway("sk_test", "http://unused.example.com", "whsec_test", DefaultTolerance)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}

	payload := []byte(`{"id":"evt_1","type":"charge.succeeded","data":{"object":{"id":"ch_1"}},"created":1700000000}`)

	t.Run("verifies its own signature scheme", func(t *testing.T) {
		header := SignVersioned([]byte("whsec_test"), payload, time.Now())
		if err := gw.VerifyWebhook(payload, header); err != nil {
			t.Fatalf("verify: %v", err)
		}
		if err := gw.VerifyWebhook(payload, "t=1,v1=bad"); !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected rejection, got %v", err)
		}
	})

	t.Run("normalizes event types", func(t *testing.T) {
		evt, err := gw.ParseWebhookEvent(payload)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if evt.ID != "evt_1" || evt.Type != adapter.EventPaymentSucceeded || evt.SubjectID != "ch_1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.NewStatus != string(model.PaymentStatusSucceeded) {
			t.Fatalf("status %q", evt.NewStatus)
		}
	})

	t.Run("rejects unknown and malformed events", func(t *testing.T) {
		bad := [][]byte{
			[]byte(`not json`),
			[]byte(`{"id":"evt_1","type":"charge.unknown","data":{"object":{"id":"ch_1"}}}`),
			[]byte(`{"id":"","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`),
			[]byte(`{"id":"evt_1","type":"charge.succeeded","data":{"object":{"id":""}}}`),
		}
		for i, payload := range bad {
			if _, err := gw.ParseWebhookEvent(payload); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("case %d: expected ErrInvalidArgument, got %v", i, err)
			}
		}
	})
}
