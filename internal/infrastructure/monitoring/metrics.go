package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every Record/Set method is safe to
// call on a nil *Metrics, which makes metrics optional for components.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Evaluation metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec

	// Isolate metrics
	IsolatesActive prometheus.Gauge
	IsolatesClosed *prometheus.CounterVec

	// Connection metrics
	ConnectAttempts *prometheus.CounterVec
	ConnectionState prometheus.Gauge

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	Evaluations     int64            `json:"evaluations"`
	Failures        map[string]int64 `json:"failures"`
	ActiveIsolates  int64            `json:"active_isolates"`
	ConnectAttempts int64            `json:"connect_attempts"`
	TotalDuration   float64          `json:"total_duration_seconds"`
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		snapshot: Snapshot{Failures: make(map[string]int64)},

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptbox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbox_evaluations_total",
				Help: "Total number of script evaluations by outcome",
			},
			[]string{"outcome"},
		),
		EvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptbox_evaluation_duration_seconds",
				Help:    "Script evaluation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"module"},
		),

		IsolatesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptbox_isolates_active",
				Help: "Number of open isolates",
			},
		),
		IsolatesClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbox_isolates_closed_total",
				Help: "Total number of closed isolates",
			},
			[]string{"status"},
		),

		ConnectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbox_connect_attempts_total",
				Help: "Total number of sandbox connect attempts by result",
			},
			[]string{"result"},
		),
		ConnectionState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptbox_connection_state",
				Help: "Sandbox connection state (0 absent, 1 connecting, 2 live)",
			},
		),
	}

	return m
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEvaluation records a finished evaluation. outcome is "success" or
// the failure kind.
func (m *Metrics) RecordEvaluation(outcome string, withModule bool, duration time.Duration) {
	if m == nil {
		return
	}
	module := "false"
	if withModule {
		module = "true"
	}
	m.EvaluationsTotal.WithLabelValues(outcome).Inc()
	m.EvaluationDuration.WithLabelValues(module).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Evaluations++
	m.snapshot.TotalDuration += duration.Seconds()
	if outcome != "success" {
		m.snapshot.Failures[outcome]++
	}
	m.mu.Unlock()
}

// IsolateOpened records a newly created isolate
func (m *Metrics) IsolateOpened() {
	if m == nil {
		return
	}
	m.IsolatesActive.Inc()

	m.mu.Lock()
	m.snapshot.ActiveIsolates++
	m.mu.Unlock()
}

// IsolateClosed records a released isolate
func (m *Metrics) IsolateClosed(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.IsolatesActive.Dec()
	m.IsolatesClosed.WithLabelValues(status).Inc()

	m.mu.Lock()
	m.snapshot.ActiveIsolates--
	m.mu.Unlock()
}

// RecordConnect records a connect attempt
func (m *Metrics) RecordConnect(result string) {
	if m == nil {
		return
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()

	m.mu.Lock()
	m.snapshot.ConnectAttempts++
	m.mu.Unlock()
}

// SetConnectionState records the connection state
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
}

// Snapshot returns a copy of the current values
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Failures: map[string]int64{}}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.snapshot
	out.Failures = make(map[string]int64, len(m.snapshot.Failures))
	for k, v := range m.snapshot.Failures {
		out.Failures[k] = v
	}
	return out
}
