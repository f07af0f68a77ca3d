package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		providerCallsTotal,
		providerCallLatency,
	)
}

var (
	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Outbound gateway calls per provider and operation.",
		},
		[]string{"provider", "op", "success"},
	)

	providerCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "Gateway call latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"provider", "op"},
	)
)

func ObserveProviderCall(provider, op string, latencyMs int64, success bool) {
	providerCallsTotal.WithLabelValues(norm(provider), op, strconv.FormatBool(success)).Inc()
	providerCallLatency.WithLabelValues(norm(provider), op).Observe(float64(latencyMs))
}
