// File: internal/infra/adapters/provider/momocash_gateway.go
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

var _ adapter.PaymentProvider = (*MomoCashGateway)(nil)

// MomoCashGateway integrates the mobile-money processor. Collections settle
// asynchronously, often minutes later, when the subscriber approves the
// USSD/app prompt, so Charge returns a pending result and the webhook path
// resolves it. Nothing here may assume synchronous confirmation.
type MomoCashGateway struct {
	apiKey        string
	apiBase       string
	webhookSecret []byte
	tolerance     time.Duration
	client        *http.Client
}

func NewMomoCashGateway(apiKey, apiBase, webhookSecret string, tolerance time.Duration) (*MomoCashGateway, error) {
	if apiKey == "" {
		return nil, errors.New("momocash api key empty")
	}
	if apiBase == "" {
		apiBase = "https://api.momocash.example.com"
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &MomoCashGateway{
		apiKey:        apiKey,
		apiBase:       apiBase,
		webhookSecret: []byte(webhookSecret),
		tolerance:     tolerance,
		// longer timeout: the collection request itself can be slow on
		// carrier networks even before the async settlement wait
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (g *MomoCashGateway) Name() string { return "momocash" }

func (g *MomoCashGateway) post(ctx context.Context, op, path string, body any, idempotencyKey string, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return domain.NewProviderError(g.Name(), domain.ProviderErrInvalidRequest, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+path, bytes.NewReader(b))
	if err != nil {
		return domain.NewProviderError(g.Name(), domain.ProviderErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", g.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("X-Reference-Id", idempotencyKey)
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

	var we struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&we)
	msg := we.Message
	if msg == "" {
		msg = fmt.Sprintf("http %d", resp.StatusCode)
	}
	return domain.NewProviderError(g.Name(), classifyMomo(resp.StatusCode, we.Reason), errors.New(msg))
}

func classifyMomo(status int, reason string) domain.ProviderErrorCode {
	switch reason {
	case "PAYER_LIMIT_REACHED", "NOT_ENOUGH_FUNDS", "PAYER_REJECTED":
		return domain.ProviderErrDeclined
	case "ALREADY_REFUNDED":
		return domain.ProviderErrAlreadyRefunded
	case "RESOURCE_NOT_FOUND":
		return domain.ProviderErrNotFound
	}
	switch {
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

// Charge requests a collection from the subscriber's mobile wallet. The
// provider acknowledges with a reference and leaves the collection PENDING
// until the subscriber approves; the settlement webhook finishes the story.
func (g *MomoCashGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	var out struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	err := g.post(ctx, "charge", "/collection/v1/requesttopay", map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"payer":    req.CustomerRef,
	}, req.IdempotencyKey, &out)
	if err != nil {
		return adapter.ChargeResult{}, err
	}
	status := model.PaymentStatusPending
	switch out.Status {
	case "SUCCESSFUL":
		// rare same-call settlement on test networks
		status = model.PaymentStatusSucceeded
	case "FAILED":
		status = model.PaymentStatusFailed
	}
	return adapter.ChargeResult{ProviderTxID: out.Reference, Status: status}, nil
}

func (g *MomoCashGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.IntentResult, error) {
	var out struct {
		Reference string `json:"reference"`
		PayToken  string `json:"pay_token"`
		ExpiresAt int64  `json:"expires_at"`
	}
	err := g.post(ctx, "create_intent", "/collection/v1/preapprovals", map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"payer":    req.CustomerRef,
	}, "", &out)
	if err != nil {
		return adapter.IntentResult{}, err
	}
	res := adapter.IntentResult{ProviderRef: out.Reference, ClientSecret: out.PayToken}
	if out.ExpiresAt > 0 {
		res.ExpiresAt = time.Unix(out.ExpiresAt, 0)
	}
	return res, nil
}

func (g *MomoCashGateway) Refund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	var out struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	}
	err := g.post(ctx, "refund", "/disbursement/v1/refunds", map[string]any{
		"collection_reference": req.ProviderTxID,
		"amount":               req.Amount,
	}, "", &out)
	if err != nil {
		return adapter.RefundResult{}, err
	}
	return adapter.RefundResult{ProviderRefundID: out.Reference, Amount: out.Amount, RefundedAt: time.Now()}, nil
}

func (g *MomoCashGateway) CreateSubscription(ctx context.Context, planRef, customerRef string) (adapter.SubscriptionResult, error) {
	var out struct {
		Reference   string `json:"reference"`
		PeriodStart int64  `json:"period_start"`
		PeriodEnd   int64  `json:"period_end"`
	}
	err := g.post(ctx, "create_subscription", "/collection/v1/recurring", map[string]any{
		"plan":  planRef,
		"payer": customerRef,
	}, "", &out)
	if err != nil {
		return adapter.SubscriptionResult{}, err
	}
	res := adapter.SubscriptionResult{ProviderSubID: out.Reference}
	if out.PeriodStart > 0 {
		res.CurrentPeriodStart = time.Unix(out.PeriodStart, 0)
		res.CurrentPeriodEnd = time.Unix(out.PeriodEnd, 0)
	}
	return res, nil
}

func (g *MomoCashGateway) CancelSubscription(ctx context.Context, providerSubID string) error {
	return g.post(ctx, "cancel_subscription", "/collection/v1/recurring/"+providerSubID+"/cancel", map[string]any{}, "", nil)
}

func (g *MomoCashGateway) VerifyWebhook(payload []byte, sigHeader string) error {
	if len(g.webhookSecret) == 0 {
		return domain.ErrSignatureInvalid
	}
	return verifyTimestampedSignature(g.webhookSecret, payload, sigHeader, g.tolerance, time.Now())
}

var momoEventTypes = map[string]string{
	"collection.settled":  adapter.EventPaymentSucceeded,
	"collection.failed":   adapter.EventPaymentFailed,
	"collection.expired":  adapter.EventPaymentCanceled,
	"collection.refunded": adapter.EventPaymentRefunded,
	"recurring.collected": adapter.EventSubscriptionRenewed,
	"recurring.missed":    adapter.EventSubscriptionPastDue,
	"recurring.stopped":   adapter.EventSubscriptionEnded,
}

func (g *MomoCashGateway) ParseWebhookEvent(payload []byte) (adapter.UnifiedEvent, error) {
	var evt struct {
		EventID   string `json:"event_id"`
		Event     string `json:"event"`
		Reference string `json:"reference"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	unified, ok := momoEventTypes[evt.Event]
	if !ok || evt.EventID == "" || evt.Reference == "" {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	return adapter.UnifiedEvent{
		ID:         evt.EventID,
		Type:       unified,
		SubjectID:  evt.Reference,
		NewStatus:  statusFor(unified),
		OccurredAt: time.Unix(evt.Timestamp, 0),
	}, nil
}
