package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		idempotencyReplaysTotal,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound webhook deliveries by provider and result (accepted/duplicate/signature_invalid/malformed/storage_error/unknown_provider).",
		},
		[]string{"provider", "result"},
	)

	idempotencyReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotency_replays_total",
			Help: "Charge-like requests answered from a committed idempotency result.",
		},
	)
)

func IncWebhookEvent(provider, result string) {
	webhookEventsTotal.WithLabelValues(norm(provider), result).Inc()
}

func IncIdempotencyReplay() {
	idempotencyReplaysTotal.Inc()
}
