// File: internal/infra/adapters/provider/noop_gateway.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*NoopGateway)(nil)

// NoopGateway is a simple in-memory gateway to use in tests. Charges settle
// synchronously unless Pending is set, which mimics mobile-money latency.
type NoopGateway struct {
	mu      sync.Mutex
	seq     int64
	name    string
	Pending bool // charge results report pending instead of succeeded
	charges map[string]int64
}

func NewNoopGateway(name string) *NoopGateway {
	if name == "" {
		name = "noop"
	}
	return &NoopGateway{name: name, charges: make(map[string]int64)}
}

func (g *NoopGateway) Name() string { return g.name }

func (g *NoopGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s-%s-%d", g.name, prefix, g.seq)
}

func (g *NoopGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next("tx")
	g.charges[id] = req.Amount
	status := model.PaymentStatusSucceeded
	if g.Pending {
		status = model.PaymentStatusPending
	}
	return adapter.ChargeResult{ProviderTxID: id, Status: status}, nil
}

func (g *NoopGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.IntentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.next("intent")
	return adapter.IntentResult{
		ProviderRef:  ref,
		ClientSecret: "secret-" + ref,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (g *NoopGateway) Refund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.charges[req.ProviderTxID]; !ok {
		return adapter.RefundResult{}, domain.NewProviderError(g.name, domain.ProviderErrNotFound, nil)
	}
	return adapter.RefundResult{
		ProviderRefundID: g.next("refund"),
		Amount:           req.Amount,
		RefundedAt:       time.Now(),
	}, nil
}

func (g *NoopGateway) CreateSubscription(ctx context.Context, planRef, customerRef string) (adapter.SubscriptionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	return adapter.SubscriptionResult{
		ProviderSubID:      g.next("sub"),
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}, nil
}

func (g *NoopGateway) CancelSubscription(ctx context.Context, providerSubID string) error {
	return nil
}

func (g *NoopGateway) VerifyWebhook(payload []byte, sigHeader string) error {
	if sigHeader != "noop-valid" {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// ParseWebhookEvent accepts pre-normalized events so tests can drive the
// webhook path without provider wire formats.
func (g *NoopGateway) ParseWebhookEvent(payload []byte) (adapter.UnifiedEvent, error) {
	var evt adapter.UnifiedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	if evt.ID == "" || evt.Type == "" || evt.SubjectID == "" {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	return evt, nil
}
