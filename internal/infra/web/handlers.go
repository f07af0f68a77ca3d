package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/model"
)

const maxWebhookBody = 1 << 20 // providers send small JSON; cap defensively

type paymentCreateRequest struct {
	Amount         int64                  `json:"amount"`
	Currency       string                 `json:"currency"`
	Method         string                 `json:"method"`
	Provider       string                 `json:"provider,omitempty"`
	CustomerRef    string                 `json:"customer_ref"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
}

func (req *paymentCreateRequest) toData(r *http.Request) model.CreatePaymentData {
	key := req.IdempotencyKey
	if h := r.Header.Get("Idempotency-Key"); h != "" {
		key = h // header wins; matches what card providers do
	}
	return model.CreatePaymentData{
		Amount:         req.Amount,
		Currency:       req.Currency,
		Method:         model.PaymentMethod(req.Method),
		Provider:       req.Provider,
		CustomerRef:    req.CustomerRef,
		IdempotencyKey: key,
		Meta:           req.Meta,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, domain.ErrInvalidArgument)
		return
	}
	p, err := s.paymentUC.CreatePayment(r.Context(), req.toData(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.paymentUC.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type refundRequest struct {
	Amount int64 `json:"amount"` // 0 refunds the full remaining balance
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, s.log, domain.ErrInvalidArgument)
			return
		}
	}
	p, err := s.paymentUC.Refund(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req paymentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, domain.ErrInvalidArgument)
		return
	}
	in, err := s.paymentUC.CreateIntent(r.Context(), req.toData(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleConfirmIntent(w http.ResponseWriter, r *http.Request) {
	p, err := s.paymentUC.ConfirmIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCancelIntent(w http.ResponseWriter, r *http.Request) {
	in, err := s.paymentUC.CancelIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

type subscriptionCreateRequest struct {
	UserRef  string `json:"user_ref"`
	PlanID   string `json:"plan_id"`
	Provider string `json:"provider,omitempty"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, domain.ErrInvalidArgument)
		return
	}
	sub, err := s.subUC.Create(r.Context(), req.UserRef, req.PlanID, req.Provider)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	atPeriodEnd := r.URL.Query().Get("at_period_end") == "true"
	sub, err := s.subUC.Cancel(r.Context(), chi.URLParam(r, "id"), atPeriodEnd)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.subUC.ListPlans(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// handleWebhook acks 2xx only after the event is durably recorded. Signature
// failures are 401 so a misconfigured provider notices; storage failures are
// 503 so the provider redelivers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, s.log, domain.ErrInvalidArgument)
		return
	}
	sig := r.Header.Get("X-Signature")
	if err := s.webhookUC.HandleDelivery(r.Context(), provider, body, sig); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
