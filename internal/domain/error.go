package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidTransition    = errors.New("illegal payment state transition")
	ErrRefundExceedsBalance = errors.New("refund amount exceeds refundable balance")
	ErrSignatureInvalid     = errors.New("webhook signature invalid")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrIdempotencyConflict  = errors.New("operation with this idempotency key is still in flight")
	ErrPlanInactive         = errors.New("plan is no longer active")
	ErrIntentExpired        = errors.New("payment intent has expired")
	ErrUnknownProvider      = errors.New("unknown payment provider")

	// Infra-level errors surfaced by repositories
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context for query")
	ErrVersionConflict    = errors.New("stale entity version")
)

// ProviderErrorCode classifies gateway failures. Declined and invalid_request
// are terminal; network and rate_limited may be retried by the caller with
// the same idempotency key.
type ProviderErrorCode string

const (
	ProviderErrDeclined          ProviderErrorCode = "declined"
	ProviderErrNetwork           ProviderErrorCode = "network"
	ProviderErrRateLimited       ProviderErrorCode = "rate_limited"
	ProviderErrInvalidRequest    ProviderErrorCode = "invalid_request"
	ProviderErrAlreadyRefunded   ProviderErrorCode = "already_refunded"
	ProviderErrInsufficientFunds ProviderErrorCode = "insufficient_funds"
	ProviderErrNotFound          ProviderErrorCode = "not_found"
)

// ProviderError wraps a gateway failure with its provider name and
// classification. Adapters never swallow provider errors; they return one of
// these and let the orchestrator decide terminal-vs-retryable.
type ProviderError struct {
	Provider string
	Code     ProviderErrorCode
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may safely retry the operation with
// the same idempotency key.
func (e *ProviderError) Retryable() bool {
	return e.Code == ProviderErrNetwork || e.Code == ProviderErrRateLimited
}

func NewProviderError(provider string, code ProviderErrorCode, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Err: err}
}

// AsProviderError unwraps err into a *ProviderError if present.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
