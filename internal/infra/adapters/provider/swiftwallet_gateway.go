// File: internal/infra/adapters/provider/swiftwallet_gateway.go
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

var _ adapter.PaymentProvider = (*SwiftWalletGateway)(nil)

// SwiftWalletGateway integrates the hosted-wallet processor. Settlement is
// synchronous like cards, but the wire vocabulary differs: charges are
// "transfers" and the API keys ride in an X-Api-Key header.
type SwiftWalletGateway struct {
	apiKey        string
	apiBase       string
	webhookSecret []byte
	tolerance     time.Duration
	client        *http.Client
}

func NewSwiftWalletGateway(apiKey, apiBase, webhookSecret string, tolerance time.Duration) (*SwiftWalletGateway, error) {
	if apiKey == "" {
		return nil, errors.New("swiftwallet api key empty")
	}
	if apiBase == "" {
		apiBase = "https://gateway.swiftwallet.example.com"
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &SwiftWalletGateway{
		apiKey:        apiKey,
		apiBase:       apiBase,
		webhookSecret: []byte(webhookSecret),
		tolerance:     tolerance,
		client:        &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *SwiftWalletGateway) Name() string { return "swiftwallet" }

func (g *SwiftWalletGateway) post(ctx context.Context, op, path string, body any, idempotencyKey string, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return domain.NewProviderError(g.Name(), domain.ProviderErrInvalidRequest, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+path, bytes.NewReader(b))
	if err != nil {
		return domain.NewProviderError(g.Name(), domain.ProviderErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", g.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	metrics.ObserveProviderCall(g.Name(), op, time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return domain.NewProviderError(g.Name(), domain.ProviderErrNetwork, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Code   string          `json:"code"` // "OK" or an error code
		Detail string          `json:"detail"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return domain.NewProviderError(g.Name(), domain.ProviderErrNetwork, err)
	}
	if envelope.Code != "OK" {
		return domain.NewProviderError(g.Name(), classifySwiftWallet(resp.StatusCode, envelope.Code),
			fmt.Errorf("%s: %s", envelope.Code, envelope.Detail))
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return domain.NewProviderError(g.Name(), domain.ProviderErrNetwork, err)
		}
	}
	return nil
}

func classifySwiftWallet(status int, code string) domain.ProviderErrorCode {
	switch code {
	case "BALANCE_LOW", "WALLET_DECLINED":
		return domain.ProviderErrDeclined
	case "ALREADY_REVERSED":
		return domain.ProviderErrAlreadyRefunded
	case "REVERSAL_TOO_LARGE":
		return domain.ProviderErrInsufficientFunds
	case "NOT_FOUND":
		return domain.ProviderErrNotFound
	case "THROTTLED":
		return domain.ProviderErrRateLimited
	}
	if status >= 500 {
		return domain.ProviderErrNetwork
	}
	return domain.ProviderErrInvalidRequest
}

func (g *SwiftWalletGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	var out struct {
		TransferID string `json:"transfer_id"`
		State      string `json:"state"`
	}
	err := g.post(ctx, "charge", "/v2/transfers", map[string]any{
		"amount_minor": req.Amount,
		"currency":     req.Currency,
		"wallet_ref":   req.CustomerRef,
	}, req.IdempotencyKey, &out)
	if err != nil {
		return adapter.ChargeResult{}, err
	}
	status := model.PaymentStatusSucceeded
	if out.State != "COMPLETED" {
		status = model.PaymentStatusFailed
	}
	return adapter.ChargeResult{ProviderTxID: out.TransferID, Status: status}, nil
}

func (g *SwiftWalletGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.IntentResult, error) {
	var out struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
		TTL       int64  `json:"ttl_seconds"`
	}
	err := g.post(ctx, "create_intent", "/v2/sessions", map[string]any{
		"amount_minor": req.Amount,
		"currency":     req.Currency,
		"wallet_ref":   req.CustomerRef,
	}, "", &out)
	if err != nil {
		return adapter.IntentResult{}, err
	}
	res := adapter.IntentResult{ProviderRef: out.SessionID, ClientSecret: out.Token}
	if out.TTL > 0 {
		res.ExpiresAt = time.Now().Add(time.Duration(out.TTL) * time.Second)
	}
	return res, nil
}

func (g *SwiftWalletGateway) Refund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	var out struct {
		ReversalID string `json:"reversal_id"`
		Amount     int64  `json:"amount_minor"`
	}
	err := g.post(ctx, "refund", "/v2/reversals", map[string]any{
		"transfer_id":  req.ProviderTxID,
		"amount_minor": req.Amount,
	}, "", &out)
	if err != nil {
		return adapter.RefundResult{}, err
	}
	return adapter.RefundResult{ProviderRefundID: out.ReversalID, Amount: out.Amount, RefundedAt: time.Now()}, nil
}

func (g *SwiftWalletGateway) CreateSubscription(ctx context.Context, planRef, customerRef string) (adapter.SubscriptionResult, error) {
	var out struct {
		MandateID   string `json:"mandate_id"`
		PeriodStart int64  `json:"period_start"`
		PeriodEnd   int64  `json:"period_end"`
	}
	err := g.post(ctx, "create_subscription", "/v2/mandates", map[string]any{
		"plan_ref":   planRef,
		"wallet_ref": customerRef,
	}, "", &out)
	if err != nil {
		return adapter.SubscriptionResult{}, err
	}
	res := adapter.SubscriptionResult{ProviderSubID: out.MandateID}
	if out.PeriodStart > 0 {
		res.CurrentPeriodStart = time.Unix(out.PeriodStart, 0)
		res.CurrentPeriodEnd = time.Unix(out.PeriodEnd, 0)
	}
	return res, nil
}

func (g *SwiftWalletGateway) CancelSubscription(ctx context.Context, providerSubID string) error {
	return g.post(ctx, "cancel_subscription", "/v2/mandates/"+providerSubID+"/revoke", map[string]any{}, "", nil)
}

func (g *SwiftWalletGateway) VerifyWebhook(payload []byte, sigHeader string) error {
	if len(g.webhookSecret) == 0 {
		return domain.ErrSignatureInvalid
	}
	return verifyTimestampedSignature(g.webhookSecret, payload, sigHeader, g.tolerance, time.Now())
}

var swiftWalletEventTypes = map[string]string{
	"wallet.payment.completed": adapter.EventPaymentSucceeded,
	"wallet.payment.declined":  adapter.EventPaymentFailed,
	"wallet.payment.voided":    adapter.EventPaymentCanceled,
	"wallet.payment.reversed":  adapter.EventPaymentRefunded,
	"wallet.mandate.collected": adapter.EventSubscriptionRenewed,
	"wallet.mandate.missed":    adapter.EventSubscriptionPastDue,
	"wallet.mandate.revoked":   adapter.EventSubscriptionEnded,
}

func (g *SwiftWalletGateway) ParseWebhookEvent(payload []byte) (adapter.UnifiedEvent, error) {
	var evt struct {
		ID         string `json:"id"`
		Kind       string `json:"kind"`
		TransferID string `json:"transfer_id"`
		MandateID  string `json:"mandate_id"`
		Timestamp  int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	unified, ok := swiftWalletEventTypes[evt.Kind]
	if !ok || evt.ID == "" {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	subject := evt.TransferID
	if subject == "" {
		subject = evt.MandateID
	}
	if subject == "" {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	return adapter.UnifiedEvent{
		ID:         evt.ID,
		Type:       unified,
		SubjectID:  subject,
		NewStatus:  statusFor(unified),
		OccurredAt: time.Unix(evt.Timestamp, 0),
	}, nil
}
