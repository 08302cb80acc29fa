// Package metrics exposes Prometheus metrics of the playout core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters, gauges and histograms of the server.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	takesTotal          prometheus.Counter
	actionsRejected     *prometheus.CounterVec
	timelineGenerations prometheus.Counter
	timelineObjects     prometheus.Gauge
	activePlaylists     prometheus.Gauge
	lockWait            *prometheus.HistogramVec
	blueprintErrors     *prometheus.CounterVec
	ingestOperations    *prometheus.CounterVec
}

// New creates and registers the metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playout_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playout_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		takesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playout_takes_total",
			Help: "Total number of completed takes",
		}),
		actionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playout_actions_rejected_total",
			Help: "User actions rejected, by error key",
		}, []string{"key"}),
		timelineGenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playout_timeline_generations_total",
			Help: "Total number of timeline rebuilds",
		}),
		timelineObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playout_timeline_objects",
			Help: "Objects in the most recently generated timeline",
		}),
		activePlaylists: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playout_active_playlists",
			Help: "Number of active rundown playlists",
		}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "playout_lock_wait_seconds",
			Help:    "Time spent waiting for a playlist or studio lock",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5},
		}, []string{"priority"}),
		blueprintErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playout_blueprint_errors_total",
			Help: "Errors returned by blueprint callbacks, by callback",
		}, []string{"callback"}),
		ingestOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playout_ingest_operations_total",
			Help: "Ingest operations, by operation and outcome",
		}, []string{"operation", "outcome"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.takesTotal,
		m.actionsRejected,
		m.timelineGenerations,
		m.timelineObjects,
		m.activePlaylists,
		m.lockWait,
		m.blueprintErrors,
		m.ingestOperations,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncTakes counts a completed take.
func (m *Metrics) IncTakes() {
	m.takesTotal.Inc()
}

// IncRejected counts a rejected user action.
func (m *Metrics) IncRejected(key string) {
	m.actionsRejected.WithLabelValues(key).Inc()
}

// ObserveTimeline records a timeline rebuild with n objects.
func (m *Metrics) ObserveTimeline(n int) {
	m.timelineGenerations.Inc()
	m.timelineObjects.Set(float64(n))
}

// SetActivePlaylists sets the active playlists gauge.
func (m *Metrics) SetActivePlaylists(n int) {
	m.activePlaylists.Set(float64(n))
}

// ObserveLockWait records how long an acquisition waited.
func (m *Metrics) ObserveLockWait(priority string, wait time.Duration) {
	m.lockWait.WithLabelValues(priority).Observe(wait.Seconds())
}

// IncBlueprintErrors counts a failed blueprint callback.
func (m *Metrics) IncBlueprintErrors(callback string) {
	m.blueprintErrors.WithLabelValues(callback).Inc()
}

// IncIngest counts an ingest operation. Outcome is "applied", "unchanged",
// "unsynced" or "failed".
func (m *Metrics) IncIngest(operation, outcome string) {
	m.ingestOperations.WithLabelValues(operation, outcome).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
