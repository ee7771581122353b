package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "screening"

// Registry holds all domain metrics for the screening engine. It is
// registerer-scoped so tests can use isolated registries.
type Registry struct {
	// Screening pipeline
	ScreeningsTotal   *prometheus.CounterVec
	ScreeningDuration prometheus.Histogram
	MatchCandidates   prometheus.Histogram

	// Job queue
	JobRetriesTotal  prometheus.Counter
	JobsDeadLettered prometheus.Counter
	QueueDepth       prometheus.Gauge

	// Provider layer
	BranchFailures       *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec
	BreakerState         *prometheus.GaugeVec
	BreakerTransitions   *prometheus.CounterVec
}

// NewRegistry creates all screening metrics against the given registerer
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		ScreeningsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "screenings_total",
				Help:      "Completed screenings by verdict",
			},
			[]string{"status"},
		),
		ScreeningDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "duration_seconds",
				Help:      "End-to-end screening job duration",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		MatchCandidates: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "match_candidates",
				Help:      "Match candidates produced per screening",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		JobRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "job_retries_total",
				Help:      "Jobs requeued after a processing failure",
			},
		),
		JobsDeadLettered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "jobs_dead_lettered_total",
				Help:      "Jobs moved to the dead letter list",
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Jobs waiting in the ready list",
			},
		),
		BranchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "providers",
				Name:      "branch_failures_total",
				Help:      "Fan-out branches excluded from aggregation",
			},
			[]string{"provider", "reason"},
		),
		ProviderCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "providers",
				Name:      "call_duration_seconds",
				Help:      "External provider call latency",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"provider", "outcome"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "providers",
				Name:      "breaker_state",
				Help:      "Circuit state per provider (0 closed, 1 open, 2 half-open)",
			},
			[]string{"provider"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "providers",
				Name:      "breaker_transitions_total",
				Help:      "Circuit state transitions per provider",
			},
			[]string{"provider", "to"},
		),
	}
}
