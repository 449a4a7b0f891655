package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports request outcomes to Prometheus.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	attemptsUsed    *prometheus.HistogramVec
	costUSD         *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
}

// NewMetrics registers the metric set with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests by provider, model, and outcome.",
		}, []string{"provider", "model", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider", "outcome"}),
		attemptsUsed: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_attempts",
			Help:    "Upstream attempts per request including retries.",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		}, []string{"provider"}),
		costUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cost_usd_total",
			Help: "Confirmed spend in USD.",
		}, []string{"provider", "model"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Billed tokens by direction.",
		}, []string{"provider", "model", "direction"}),
	}
}

// Observe folds one event into the metric set.
func (m *Metrics) Observe(event RequestEvent) {
	m.requestsTotal.WithLabelValues(event.Provider, event.Model, string(event.Outcome)).Inc()
	m.requestDuration.WithLabelValues(event.Provider, string(event.Outcome)).
		Observe(float64(event.DurationMS) / 1000)

	if event.AttemptsUsed > 0 {
		m.attemptsUsed.WithLabelValues(event.Provider).Observe(float64(event.AttemptsUsed))
	}
	if event.CostUSD > 0 {
		m.costUSD.WithLabelValues(event.Provider, event.Model).Add(event.CostUSD)
	}
	if event.InputTokens > 0 {
		m.tokensTotal.WithLabelValues(event.Provider, event.Model, "input").Add(float64(event.InputTokens))
	}
	if event.OutputTokens > 0 {
		m.tokensTotal.WithLabelValues(event.Provider, event.Model, "output").Add(float64(event.OutputTokens))
	}
}
