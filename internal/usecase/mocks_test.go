//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/worker"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

// memPaymentRepo is a small in-memory implementation used by unit tests.
type memPaymentRepo struct {
	mu       sync.RWMutex
	store    map[string]*model.Payment
	SaveFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{store: make(map[string]*model.Payment)}
}

func (m *memPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, tx, p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.store {
		if e.ID != p.ID && e.IdempotencyKey == p.IdempotencyKey {
			return domain.ErrAlreadyExists
		}
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) FindByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.IdempotencyKey == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) FindByProviderTxID(ctx context.Context, tx repository.Tx, provider, providerTxID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.Provider == provider && p.ProviderTxID == providerTxID && providerTxID != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, expectedVersion int, status model.PaymentStatus, providerTxID *string, refundedAmount *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	p.Status = status
	if providerTxID != nil {
		p.ProviderTxID = *providerTxID
	}
	if refundedAmount != nil {
		p.RefundedAmount = *refundedAmount
	}
	p.Version++
	p.UpdatedAt = time.Now()
	return nil
}

func (m *memPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payment
	for _, p := range m.store {
		if p.Status == model.PaymentStatusPending && p.UpdatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memPaymentRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, p := range m.store {
		if p.CreatedAt.Format("2006-01") != period {
			continue
		}
		if p.Status == model.PaymentStatusSucceeded || p.Status == model.PaymentStatusPartiallyRefunded {
			sum += p.Amount - p.RefundedAmount
		}
	}
	return sum, nil
}

type memIntentRepo struct {
	mu    sync.RWMutex
	store map[string]*model.PaymentIntent
}

func newMemIntentRepo() *memIntentRepo {
	return &memIntentRepo{store: make(map[string]*model.PaymentIntent)}
}

func (m *memIntentRepo) Save(ctx context.Context, tx repository.Tx, in *model.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *in
	m.store[in.ID] = &cp
	return nil
}

func (m *memIntentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (m *memIntentRepo) FindByProviderRef(ctx context.Context, tx repository.Tx, provider, providerRef string) (*model.PaymentIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, in := range m.store {
		if in.Provider == provider && in.ProviderRef == providerRef && providerRef != "" {
			cp := *in
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memIntentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, expectedVersion int, status model.PaymentStatus, paymentID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if in.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	in.Status = status
	if paymentID != nil {
		in.PaymentID = paymentID
	}
	in.Version++
	in.UpdatedAt = time.Now()
	return nil
}

type memSubscriptionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Subscription
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{store: make(map[string]*model.Subscription)}
}

func (m *memSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubscriptionRepo) FindByProviderSubID(ctx context.Context, tx repository.Tx, provider, providerSubID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.store {
		if s.Provider == provider && s.ProviderSubID == providerSubID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userRef string) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.UserRef == userRef && s.Status != model.SubscriptionStatusCanceled {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, expectedVersion int, status model.SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if s.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	s.Status = status
	s.Version++
	s.UpdatedAt = time.Now()
	return nil
}

type memPlanRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Plan
}

func newMemPlanRepo() *memPlanRepo {
	return &memPlanRepo{store: make(map[string]*model.Plan)}
}

func (m *memPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Plan
	for _, p := range m.store {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPlanRepo) Deactivate(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Active = false
	return nil
}

type memEventRepo struct {
	mu    sync.RWMutex
	store map[string]*repository.WebhookEvent // by internal id
	seen  map[string]bool                     // provider+event_id uniqueness
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{store: make(map[string]*repository.WebhookEvent), seen: make(map[string]bool)}
}

func (m *memEventRepo) Record(ctx context.Context, tx repository.Tx, e *repository.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := e.Provider + "/" + e.EventID
	if m.seen[key] {
		return domain.ErrAlreadyExists
	}
	m.seen[key] = true
	cp := *e
	m.store[e.ID] = &cp
	return nil
}

func (m *memEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok || e.ProcessedAt != nil {
		return domain.ErrNotFound
	}
	e.ProcessedAt = &at
	return nil
}

func (m *memEventRepo) ListUnprocessed(ctx context.Context, tx repository.Tx, limit int) ([]*repository.WebhookEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*repository.WebhookEvent
	for _, e := range m.store {
		if e.ProcessedAt == nil {
			cp := *e
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// memIdemStore mirrors the Redis store's reserve/commit/release contract
// without the polling, which unit tests do not need.
type memIdemStore struct {
	mu      sync.Mutex
	inflight map[string]string // key -> token
	results  map[string]repository.IdempotencyResult
}

func newMemIdemStore() *memIdemStore {
	return &memIdemStore{inflight: make(map[string]string), results: make(map[string]repository.IdempotencyResult)}
}

func (m *memIdemStore) Reserve(ctx context.Context, key string) (repository.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, ok := m.results[key]; ok {
		cp := res
		return repository.Reservation{Fresh: false, Result: &cp}, nil
	}
	if _, ok := m.inflight[key]; ok {
		return repository.Reservation{Fresh: false}, nil
	}
	token := key + "-token"
	m.inflight[key] = token
	return repository.Reservation{Fresh: true, Token: token}, nil
}

func (m *memIdemStore) Commit(ctx context.Context, key string, res repository.IdempotencyResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, key)
	m.results[key] = res
	return nil
}

func (m *memIdemStore) Release(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[key] == token {
		delete(m.inflight, key)
	}
	return nil
}

type memLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]string)}
}

func (m *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return "", domain.ErrOperationFailed
	}
	token := key + "-lock"
	m.locks[key] = token
	return token, nil
}

func (m *memLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

// syncQueue runs submitted tasks inline so tests observe their effects
// without goroutine coordination.
type syncQueue struct{}

func (syncQueue) Submit(task worker.Task) error {
	return task(context.Background())
}

// stubGateway is a scriptable adapter; unset hooks fall back to a settling
// default so happy-path tests stay short. Counters are mutex-guarded so
// concurrency tests can charge from several goroutines.
type stubGateway struct {
	name string

	mu          sync.Mutex
	chargeCalls int
	refundCalls int
	seq         int

	ChargeFunc func(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error)
	IntentFunc func(ctx context.Context, req adapter.IntentRequest) (adapter.IntentResult, error)
	RefundFunc func(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error)
}

func newStubGateway(name string) *stubGateway { return &stubGateway{name: name} }

func (g *stubGateway) Name() string { return g.name }

func (g *stubGateway) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%s-%d", g.name, prefix, g.seq)
}

func (g *stubGateway) charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chargeCalls
}

func (g *stubGateway) Charge(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	g.mu.Lock()
	g.chargeCalls++
	g.mu.Unlock()
	if g.ChargeFunc != nil {
		return g.ChargeFunc(ctx, req)
	}
	return adapter.ChargeResult{ProviderTxID: g.next("tx"), Status: model.PaymentStatusSucceeded}, nil
}

func (g *stubGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.IntentResult, error) {
	if g.IntentFunc != nil {
		return g.IntentFunc(ctx, req)
	}
	ref := g.next("intent")
	return adapter.IntentResult{ProviderRef: ref, ClientSecret: "secret-" + ref}, nil
}

func (g *stubGateway) Refund(ctx context.Context, req adapter.RefundRequest) (adapter.RefundResult, error) {
	g.mu.Lock()
	g.refundCalls++
	g.mu.Unlock()
	if g.RefundFunc != nil {
		return g.RefundFunc(ctx, req)
	}
	return adapter.RefundResult{ProviderRefundID: g.next("refund"), Amount: req.Amount, RefundedAt: time.Now()}, nil
}

func (g *stubGateway) CreateSubscription(ctx context.Context, planRef, customerRef string) (adapter.SubscriptionResult, error) {
	now := time.Now()
	return adapter.SubscriptionResult{
		ProviderSubID:      g.next("sub"),
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}, nil
}

func (g *stubGateway) CancelSubscription(ctx context.Context, providerSubID string) error { return nil }

func (g *stubGateway) VerifyWebhook(payload []byte, sigHeader string) error {
	if sigHeader != "valid" {
		return domain.ErrSignatureInvalid
	}
	return nil
}

func (g *stubGateway) ParseWebhookEvent(payload []byte) (adapter.UnifiedEvent, error) {
	var evt adapter.UnifiedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return adapter.UnifiedEvent{}, domain.ErrInvalidArgument
	}
	return evt, nil
}

// memRegistry resolves gateways by name; "" picks the default.
type memRegistry struct {
	def string
	gws map[string]adapter.PaymentProvider
}

func newMemRegistry(def string, gws ...adapter.PaymentProvider) *memRegistry {
	r := &memRegistry{def: def, gws: make(map[string]adapter.PaymentProvider)}
	for _, g := range gws {
		r.gws[g.Name()] = g
	}
	return r
}

func (r *memRegistry) Resolve(name string) (adapter.PaymentProvider, error) {
	if name == "" {
		name = r.def
	}
	gw, ok := r.gws[name]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return gw, nil
}

func (r *memRegistry) Names() []string {
	out := make([]string, 0, len(r.gws))
	for n := range r.gws {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
