// File: internal/infra/adapters/provider/cardnet_gateway.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/metrics"
)

var _ adapter.PaymentProvider = (*CardNetGateway)(nil)

// CardNetGateway talks to the card-network processor's JSON REST API. It is
// the reference adapter: synchronous settlement, provider-side idempotency
// via the Idempotency-Key header, versioned webhook signatures.
type CardNetGateway struct {
	apiKey        string
	apiBase       string
	webhookSecret []byte
	tolerance     time.Duration
	client        *http.Client
}

func NewCardNetGateway(apiKey, apiBase, webhookSecret string, tolerance time.Duration) (*CardNetGateway, error) {
	if apiKey == "" {
		return nil, errors.New("cardnet api key empty")
	}
	if apiBase == "" {
		apiBase = "https://api.cardnet.example.com"
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &CardNetGateway{
		apiKey:        apiKey,
		apiBase:       apiBase,
		webhookSecret: []byte(webhookSecret),
		tolerance:     tolerance,
		client:        &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *CardNetGateway) Name() string { return "cardnet" }

// cardnetError is the provider's wire error envelope.
type cardnetError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do posts a JSON body and decodes the response into out, translating
// transport and HTTP-level failures into the domain error taxonomy.
func (g *CardNetGateway) do(ctx context.Context, op, method, path string, body any, idempotencyKey string, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return domain.NewProviderError(g.Name(), domain.ProviderErrInvalidRequest, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, g.apiBase+path, &buf)
	if err != nil {
		return domain.NewProviderError(g.Name(), domain.ProviderErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	metrics.ObserveProviderCall(g.Name(), op, time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return domain.NewProviderError(g.Name(), domain.ProviderErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.NewProviderError(g.Name(), domain.ProviderErrNetwork, err)
		}
		return nil
	}

	var we cardnetError
	_ = json.NewDecoder(resp.Body).Decode(&we)
	msg := we.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("http %d", resp.StatusCode)
	}
	return domain.NewProviderError(g.Name(), classifyCardnet(resp.StatusCode, we.Error.Code), errors.New(msg))
}

func classifyCardnet(status int, code string) domain.ProviderErrorCode {
	switch code {
	case "card_declined", "insufficient_funds_card":
		return domain.ProviderErrDeclined
	case "charge_already_refunded":
		return domain.ProviderErrAlreadyRefunded
	case "refund_exceeds_charge":
		return domain.ProviderErrInsufficientFunds
	case "resource_missing":
		return domain.ProviderErrNotFound
	}
	switch {
	case status == http.StatusPaymentRequired:
		return domain.ProviderErrDeclined
	case status == http.StatusTooManyRequests:
		return domain.ProviderErrRateLimited
	case status == http.StatusNotFound:
		return domain.ProviderErrNotFound
	case status >= 400 && status < 500:
		return domain.ProviderErrInvalidRequest
	default:
		return domain.ProviderErrNetwork
	}
}

func (g *CardNetGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	payload := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"customer": req.CustomerRef,
		"method":   string(req.Method),
	}
	if req.Meta != nil {
		payload["metadata"] = req.Meta
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := g.do(ctx, "charge", http.MethodPost, "/v1/charges", payload, req.IdempotencyKey, &out); err != nil {
		return adapter.ChargeResult{}, err
	}
	status := model.PaymentStatusSucceeded
	if out.Status != "succeeded" {
		status = model.PaymentStatusFailed
	}
	return adapter.ChargeResult{ProviderTxID: out.ID, Status: status}, nil
}

func (g *CardNetGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.IntentResult, error) {
	payload := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"customer": req.CustomerRef,
	}
	var out struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		ExpiresAt    int64  `json:"expires_at"`
	}
	if err := g.do(ctx, "create_intent", http.MethodPost, "/v1/payment_intents", payload, "", &out); err != nil {
		return adapter.IntentResult{}, err
	}
	res := adapter.IntentResult{ProviderRef: out.ID, ClientSecret: out.ClientSecret}
	if out.ExpiresAt > 0 {
		res.ExpiresAt = time.Unix(out.ExpiresAt, 0)
	}
	return res, nil
}

func (g *CardNetGateway) Refund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	payload := map[string]any{
		"charge": req.ProviderTxID,
		"amount": req.Amount,
	}
	if req.Reason != "" {
		payload["reason"] = req.Reason
	}
	var out struct {
		ID      string `json:"id"`
		Amount  int64  `json:"amount"`
		Created int64  `json:"created"`
	}
	if err := g.do(ctx, "refund", http.MethodPost, "/v1/refunds", payload, "", &out); err != nil {
		return adapter.RefundResult{}, err
	}
	return adapter.RefundResult{
		ProviderRefundID: out.ID,
		Amount:           out.Amount,
		RefundedAt:       time.Unix(out.Created, 0),
	}, nil
}

func (g *CardNetGateway) CreateSubscription(ctx context.Context, planRef, customerRef string) (adapter.SubscriptionResult, error) {
	payload := map[string]any{
		"plan":     planRef,
		"customer": customerRef,
	}
	var out struct {
		ID          string `json:"id"`
		PeriodStart int64  `json:"current_period_start"`
		PeriodEnd   int64  `json:"current_period_end"`
	}
	if err := g.do(ctx, "create_subscription", http.MethodPost, "/v1/subscriptions", payload, "", &out); err != nil {
		return adapter.SubscriptionResult{}, err
	}
	res := adapter.SubscriptionResult{ProviderSubID: out.ID}
	if out.PeriodStart > 0 {
		res.CurrentPeriodStart = time.Unix(out.PeriodStart, 0)
		res.CurrentPeriodEnd = time.Unix(out.PeriodEnd, 0)
	}
	return res, nil
}

func (g *CardNetGateway) CancelSubscription(ctx context.Context, providerSubID string) error {
	return g.do(ctx, "cancel_subscription", http.MethodDelete, "/v1/subscriptions/"+providerSubID, nil, "", nil)
}

func (g *CardNetGateway) VerifyWebhook(payload []byte, sigHeader string) error {
	if len(g.webhookSecret) == 0 {
		return domain.ErrSignatureInvalid
	}
	return verifyVersionedSignature(g.webhookSecret, payload, sigHeader, g.tolerance, time.Now())
}

// cardnetEvent is the provider's webhook envelope.
type cardnetEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
	Created int64 `json:"created"`
}

var cardnetEventTypes = map[string]string{
	"charge.succeeded":        adapter.EventPaymentSucceeded,
	"charge.failed":           adapter.EventPaymentFailed,
	"charge.canceled":         adapter.EventPaymentCanceled,
	"charge.refunded":         adapter.EventPaymentRefunded,
	"invoice.paid":            adapter.EventSubscriptionRenewed,
	"invoice.payment_failed":  adapter.EventSubscriptionPastDue,
	"customer.sub.deleted":    adapter.EventSubscriptionEnded,
	"payment_intent.captured": adapter.EventPaymentSucceeded,
}

func (g *CardNetGateway) ParseWebhookEvent(payload []byte) (adapter.UnifiedEvent, error) {
	var evt cardnetEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	unified, ok := cardnetEventTypes[evt.Type]
	if !ok || evt.ID == "" || evt.Data.Object.ID == "" {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	return adapter.UnifiedEvent{
		ID:         evt.ID,
		Type:       unified,
		SubjectID:  evt.Data.Object.ID,
		NewStatus:  statusFor(unified),
		OccurredAt: time.Unix(evt.Created, 0),
	}, nil
}

// statusFor maps a unified event type to the status it implies.
func statusFor(eventType string) string {
	switch eventType {
	case adapter.EventPaymentSucceeded:
		return string(model.PaymentStatusSucceeded)
	case adapter.EventPaymentFailed:
		return string(model.PaymentStatusFailed)
	case adapter.EventPaymentCanceled:
		return string(model.PaymentStatusCanceled)
	case adapter.EventPaymentRefunded:
		return string(model.PaymentStatusRefunded)
	case adapter.EventSubscriptionRenewed:
		return string(model.SubscriptionStatusActive)
	case adapter.EventSubscriptionPastDue:
		return string(model.SubscriptionStatusPastDue)
	case adapter.EventSubscriptionEnded:
		return string(model.SubscriptionStatusCanceled)
	}
	return ""
}
