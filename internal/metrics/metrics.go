// Package metrics defines the instruments the services report to.
package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "market"

// Metrics contains the market metrics.
type Metrics struct {
	// Participants that joined a class.
	Joins metrics.Counter
	// Accepted submissions, labelled by side.
	Submissions metrics.Counter
	// Lifecycle transitions, labelled by transition (clear, confirm, advance, reset).
	RoundTransitions metrics.Counter
	// Clearing price of the most recently cleared round, any class. Not
	// labelled by class id.
	ClearingPrice metrics.Gauge
	// Units traded per cleared round.
	ClearedVolume metrics.Histogram
	// Operations aborted on an integrity violation.
	IntegrityFailures metrics.Counter
	// Webhook deliveries, labelled by event and outcome.
	WebhookDeliveries metrics.Counter
}

// PrometheusMetrics returns Metrics registered with the default Prometheus
// registry. It must be called at most once per process.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Joins: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "joins_total",
			Help:      "Number of participants that joined a class.",
		}, []string{}),
		Submissions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "submissions_total",
			Help:      "Number of accepted submissions.",
		}, []string{"side"}),
		RoundTransitions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "round_transitions_total",
			Help:      "Number of round lifecycle transitions.",
		}, []string{"transition"}),
		ClearingPrice: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "clearing_price",
			Help:      "Clearing price of the most recently cleared round.",
		}, []string{}),
		ClearedVolume: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cleared_volume_units",
			Help:      "Units traded per cleared round.",
			Buckets:   stdprometheus.ExponentialBuckets(1, 2, 10),
		}, []string{}),
		IntegrityFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "integrity_failures_total",
			Help:      "Number of operations aborted on an integrity violation.",
		}, []string{}),
		WebhookDeliveries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "webhook_deliveries_total",
			Help:      "Number of webhook delivery attempts.",
		}, []string{"event", "outcome"}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Joins:             discard.NewCounter(),
		Submissions:       discard.NewCounter(),
		RoundTransitions:  discard.NewCounter(),
		ClearingPrice:     discard.NewGauge(),
		ClearedVolume:     discard.NewHistogram(),
		IntegrityFailures: discard.NewCounter(),
		WebhookDeliveries: discard.NewCounter(),
	}
}
