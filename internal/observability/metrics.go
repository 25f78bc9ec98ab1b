// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Poll metrics
	PollsTotal     *prometheus.CounterVec
	FetchLatency   *prometheus.HistogramVec
	BackoffSeconds *prometheus.GaugeVec

	// Pipeline metrics
	RecordsFetched    *prometheus.CounterVec
	RecordsStored     *prometheus.CounterVec
	DuplicatesSkipped *prometheus.CounterVec
	FilteredOut       *prometheus.CounterVec
	SchemaMisses      *prometheus.CounterVec

	// Buffer metrics
	BufferSize *prometheus.GaugeVec

	// Resolver metrics
	EndpointProbes *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPoll *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_radar"
	}

	return &Metrics{
		PollsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "polls_total",
			Help:      "Total poll cycles by category and outcome",
		}, []string{"category", "outcome"}),
		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetch_latency_seconds",
			Help:      "Upstream fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
		BackoffSeconds: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "backoff_seconds",
			Help:      "Current rate-limit backoff per category",
		}, []string{"category"}),

		RecordsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_fetched_total",
			Help:      "Raw records decoded from upstream responses",
		}, []string{"category"}),
		RecordsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_stored_total",
			Help:      "Records accepted into the ring buffers",
		}, []string{"category"}),
		DuplicatesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duplicates_skipped_total",
			Help:      "Records suppressed by the seen-set",
		}, []string{"category"}),
		FilteredOut: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "filtered_out_total",
			Help:      "Records rejected by threshold filters",
		}, []string{"category"}),
		SchemaMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "schema_misses_total",
			Help:      "Responses that parsed as JSON but contained no record array",
		}, []string{"category"}),

		BufferSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "buffer_size",
			Help:      "Current ring buffer length per category",
		}, []string{"category"}),

		EndpointProbes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "endpoint_probes_total",
			Help:      "Endpoint probe attempts by category and result",
		}, []string{"category", "result"}),

		LastSuccessfulPoll: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of the last successful poll per category",
		}, []string{"category"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPoll records one completed poll cycle.
func RecordPoll(category, outcome string, latencySeconds float64) {
	DefaultMetrics.PollsTotal.WithLabelValues(category, outcome).Inc()
	DefaultMetrics.FetchLatency.WithLabelValues(category).Observe(latencySeconds)
}

// RecordPipeline records per-cycle pipeline counts for a category.
func RecordPipeline(category string, fetched, stored, duplicates, filtered int) {
	DefaultMetrics.RecordsFetched.WithLabelValues(category).Add(float64(fetched))
	DefaultMetrics.RecordsStored.WithLabelValues(category).Add(float64(stored))
	DefaultMetrics.DuplicatesSkipped.WithLabelValues(category).Add(float64(duplicates))
	DefaultMetrics.FilteredOut.WithLabelValues(category).Add(float64(filtered))
}

// RecordSchemaMiss records a response with no locatable record array.
func RecordSchemaMiss(category string) {
	DefaultMetrics.SchemaMisses.WithLabelValues(category).Inc()
}

// UpdateBufferSize updates a category's buffer gauge.
func UpdateBufferSize(category string, size int) {
	DefaultMetrics.BufferSize.WithLabelValues(category).Set(float64(size))
}

// UpdateBackoff updates a category's backoff gauge.
func UpdateBackoff(category string, seconds float64) {
	DefaultMetrics.BackoffSeconds.WithLabelValues(category).Set(seconds)
}

// RecordProbe records an endpoint probe attempt.
func RecordProbe(category, result string) {
	DefaultMetrics.EndpointProbes.WithLabelValues(category, result).Inc()
}

// RecordLastSuccess marks a successful poll time for a category.
func RecordLastSuccess(category string, unixSeconds float64) {
	DefaultMetrics.LastSuccessfulPoll.WithLabelValues(category).Set(unixSeconds)
}
