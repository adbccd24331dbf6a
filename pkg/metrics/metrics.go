// Package metrics provides Prometheus metrics for the extractor.
//
// All collectors live on a private Registry rather than the process default,
// so tests can inspect them with testutil and the CLI can dump them with
// WriteTextfile at the end of a run.
//
// # Basic Usage
//
//	metrics.HTTPRequests.WithLabelValues("GET", "people/{id}/work", "200").Inc()
//	metrics.RowsEmitted.WithLabelValues("employees").Add(float64(n))
//
//	timer := metrics.NewTimer()
//	fetch()
//	metrics.RequestDuration.WithLabelValues("GET", "people/{id}/work").Observe(timer.Stop().Seconds())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hibob"

// Registry holds every extractor metric.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
}

var (
	// HTTPRequests counts HTTP attempts, retries included.
	// Labels: method, endpoint (templated path), status (code or "error")
	HTTPRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP request attempts",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration tracks the latency of single HTTP attempts in seconds.
	RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request attempt latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// HTTPRetries counts retried attempts. Labels: endpoint, reason (status code or "transport")
	HTTPRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "Total number of retried HTTP attempts",
		},
		[]string{"endpoint", "reason"},
	)

	// RetriesExhausted counts calls that gave up after the last attempt.
	RetriesExhausted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_exhausted_total",
			Help:      "Total number of calls that exhausted their retry budget",
		},
		[]string{"endpoint"},
	)

	// RateLimitWait tracks time spent blocked by the rate limiter.
	RateLimitWait = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for rate limit capacity",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 15, 30, 60},
		},
	)

	// RowsEmitted counts rows written per table.
	RowsEmitted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_emitted_total",
			Help:      "Total number of rows written to output tables",
		},
		[]string{"table"},
	)

	// SchemaColumns reports the known column count per table.
	SchemaColumns = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schema_columns",
			Help:      "Number of columns tracked in schema state",
		},
		[]string{"table"},
	)

	// NewColumns counts columns discovered during this run.
	NewColumns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_new_columns_total",
			Help:      "Total number of columns discovered during the run",
		},
		[]string{"table"},
	)

	// FlattenCollisions counts truncated keys that overwrote another path.
	FlattenCollisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flatten_key_collisions_total",
			Help:      "Total number of flattened keys that collided after truncation",
		},
		[]string{"table"},
	)

	// RunDuration reports the wall time of the last run by outcome.
	RunDuration = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last extraction run in seconds",
		},
		[]string{"status"},
	)
)

// WriteTextfile writes the registry in text exposition format, suitable for
// the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
