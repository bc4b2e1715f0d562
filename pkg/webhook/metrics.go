package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for webhook_events_total.
const (
	OutcomeOK      = "ok"
	OutcomeIgnored = "ignored"
	OutcomeError   = "error"
)

// Metrics holds Prometheus metrics for the webhook router.
type Metrics struct {
	EventsTotal       *prometheus.CounterVec
	HandlerDuration   *prometheus.HistogramVec
	SignatureFailures prometheus.Counter
}

// NewMetrics creates webhook metrics registered with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_webhook_events_total",
				Help: "Webhook events received, by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		HandlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_webhook_handler_duration_seconds",
				Help:    "Webhook handler duration in seconds, by event type",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		SignatureFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "parley_webhook_signature_failures_total",
				Help: "Webhook deliveries rejected for a missing or invalid signature",
			},
		),
	}
}

// NewNopMetrics creates metrics on a private registry, for tests and callers
// that do not export metrics.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
