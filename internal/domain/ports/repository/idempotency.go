package repository

import (
	"context"
	"time"
)

// IdempotencyResult is the recorded outcome of a charge-like operation,
// returned verbatim to replaying callers.
type IdempotencyResult struct {
	PaymentID string `json:"payment_id,omitempty"`
	IntentID  string `json:"intent_id,omitempty"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Reservation is the outcome of reserving an idempotency key. Exactly one of
// the cases holds: Fresh (first caller, proceed and Commit/Release), or a
// replay carrying the first caller's committed Result.
type Reservation struct {
	Fresh  bool
	Token  string // release token, set when Fresh
	Result *IdempotencyResult
}

// IdempotencyStore is the synchronization point for charge creation.
// Reserve is atomic test-and-set across concurrent callers: the first caller
// gets a fresh reservation, later callers block (boundedly) until the first
// commits and then receive its result. Entries expire after the retention
// window; expiry is a storage concern, correctness only holds inside it.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (Reservation, error)
	Commit(ctx context.Context, key string, res IdempotencyResult) error
	// Release drops an uncommitted reservation so the caller may retry,
	// e.g. after a retryable provider network failure.
	Release(ctx context.Context, key, token string) error
}

// Locker serializes mutation of a single entity across request and webhook
// paths. Locks are held only around local read-check-write windows, never
// across provider network calls.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
