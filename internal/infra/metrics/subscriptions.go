package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(subscriptionEventsTotal) }

var subscriptionEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "subscription_events_total",
		Help: "Subscription lifecycle events (created/renewed/recovered/past_due/canceled).",
	},
	[]string{"event"},
)

func IncSubscription(event string) {
	subscriptionEventsTotal.WithLabelValues(event).Inc()
}
