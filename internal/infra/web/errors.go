package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps domain errors onto transport status codes. The mapping is
// deliberate: provider faults are 502 (our upstream failed, not the caller),
// storage faults are 503 (retryable), transition rejections are 409.
func writeError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	status := http.StatusInternalServerError
	code := ""

	var pe *domain.ProviderError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSignatureInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrIdempotencyConflict), errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRefundExceedsBalance), errors.Is(err, domain.ErrPlanInactive), errors.Is(err, domain.ErrIntentExpired):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnknownProvider):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &pe):
		status = http.StatusBadGateway
		code = string(pe.Code)
	}

	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
