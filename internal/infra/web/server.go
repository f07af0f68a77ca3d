package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Le-Sourcier/servcraft-sub004/internal/usecase"
)

type Server struct {
	paymentUC usecase.PaymentUseCase
	subUC     usecase.SubscriptionUseCase
	webhookUC usecase.WebhookUseCase
	auth      *AuthManager
	log       *zerolog.Logger
	srv       *http.Server
}

func NewServer(
	paymentUC usecase.PaymentUseCase,
	subUC usecase.SubscriptionUseCase,
	webhookUC usecase.WebhookUseCase,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		paymentUC: paymentUC,
		subUC:     subUC,
		webhookUC: webhookUC,
		auth:      auth,
		log:       logger,
	}
}

// Router builds the full route tree. Webhooks are outside JWT auth; providers
// authenticate with HMAC signatures checked in the use case.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/webhooks/{provider}", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/payments", s.handleCreatePayment)
		r.Get("/payments/{id}", s.handleGetPayment)
		r.Post("/payments/{id}/refund", s.handleRefund)
		r.Post("/intents", s.handleCreateIntent)
		r.Post("/intents/{id}/confirm", s.handleConfirmIntent)
		r.Post("/intents/{id}/cancel", s.handleCancelIntent)
		r.Post("/subscriptions", s.handleCreateSubscription)
		r.Get("/subscriptions/{id}", s.handleGetSubscription)
		r.Delete("/subscriptions/{id}", s.handleCancelSubscription)
		r.Get("/plans", s.handleListPlans)
	})

	return r
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
