// Package metrics wires Prometheus counters and histograms into the
// four core subsystems, grounded on the teacher's internal/escrow
// Metrics struct shape (one struct of *Vec fields, constructed once and
// threaded through the services that need it).
//
// Unlike the teacher, which registers directly against the default
// global registry via promauto, Metrics here takes an explicit
// *prometheus.Registry so that multiple instances (one per test) can
// coexist without a duplicate-registration panic; cmd/server and
// cmd/worker each pass their own prometheus.NewRegistry() for
// production wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram the core emits.
type Metrics struct {
	CommandTotal    *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	IdempotencyOutcome *prometheus.CounterVec

	BusPublishTotal  *prometheus.CounterVec
	BusLaggedTotal   *prometheus.CounterVec
	BusSubscriberGauge *prometheus.GaugeVec

	JobAttemptTotal   *prometheus.CounterVec
	JobPermanentFails *prometheus.CounterVec
	JobLatency        *prometheus.HistogramVec

	CacheResultTotal  *prometheus.CounterVec
	CacheOriginCalls  *prometheus.CounterVec
	CircuitStateGauge *prometheus.GaugeVec
}

// New constructs and registers all metrics against reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CommandTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "core_command_total",
			Help: "Total state-machine commands processed, by domain/operation/outcome.",
		}, []string{"domain", "operation", "outcome"}),

		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "core_command_duration_seconds",
			Help:    "State-machine command latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain", "operation"}),

		IdempotencyOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "core_idempotency_begin_total",
			Help: "Idempotency begin() outcomes: started, in_progress, replay.",
		}, []string{"entity_type", "outcome"}),

		BusPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "core_realtime_publish_total",
			Help: "Messages published to the realtime bus, by topic class.",
		}, []string{"topic_class"}),

		BusLaggedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "core_realtime_lagged_total",
			Help: "Lagged signals delivered to subscribers.",
		}, []string{"topic_class"}),

		BusSubscriberGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "core_realtime_subscribers",
			Help: "Current subscriber count per topic.",
		}, []string{"topic_class"}),

		JobAttemptTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "core_job_attempt_total",
			Help: "Job dispatch attempts, by job_type/outcome.",
		}, []string{"job_type", "outcome"}),

		JobPermanentFails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "core_job_permanent_failure_total",
			Help: "Jobs that exhausted max_attempts.",
		}, []string{"job_type"}),

		JobLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "core_job_dispatch_latency_seconds",
			Help:    "Time from enqueue to successful ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_type"}),

		CacheResultTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "core_markov_cache_result_total",
			Help: "Cache read outcomes: hit, stale, miss.",
		}, []string{"class", "result"}),

		CacheOriginCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "core_markov_origin_calls_total",
			Help: "Outbound HTTP calls to the Markov profile service.",
		}, []string{"class", "outcome"}),

		CircuitStateGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "core_markov_circuit_state",
			Help: "Circuit breaker state (0=closed,1=half_open,2=open).",
		}, []string{"name"}),
	}
}

// NewForTest returns a Metrics bound to a private registry, convenient
// for unit tests that construct a service repeatedly.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}
