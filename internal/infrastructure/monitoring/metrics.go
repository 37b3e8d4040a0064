package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// IPC metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ActorsActive      prometheus.Gauge
	ActorsTotal       prometheus.Counter
	ResourcesActive   *prometheus.GaugeVec

	// Detector metrics
	DetectorRuns      prometheus.Counter
	DeadlocksDetected prometheus.Counter
	DeadlockSize      prometheus.Histogram

	// Scenario metrics
	ScenarioRuns *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	registry  *prometheus.Registry
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	TotalOps       int64   `json:"total_operations"`
	FailedOps      int64   `json:"failed_operations"`
	Deadlocks      int64   `json:"deadlocks"`
	AverageLatency float64 `json:"average_latency_seconds"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	totalDuration  float64
}

// NewMetrics creates a metrics collector on its own registry, so several
// instances can coexist in one process
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcdbg_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ipcdbg_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ipcdbg_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ipcdbg_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// IPC metrics
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcdbg_operations_total",
				Help: "Total number of resource operations by outcome",
			},
			[]string{"kind", "op", "result"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ipcdbg_operation_duration_seconds",
				Help:    "Resource operation duration in seconds, blocking time included",
				Buckets: []float64{.0001, .001, .01, .1, .5, 1, 5, 30},
			},
			[]string{"kind", "op"},
		),
		ActorsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipcdbg_actors_active",
				Help: "Number of live actors",
			},
		),
		ActorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcdbg_actors_total",
				Help: "Total number of actors created",
			},
		),
		ResourcesActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ipcdbg_resources_active",
				Help: "Number of live resources by kind",
			},
			[]string{"kind"},
		),

		// Detector metrics
		DetectorRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcdbg_detector_runs_total",
				Help: "Total number of on-demand detection passes",
			},
		),
		DeadlocksDetected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcdbg_deadlocks_detected_total",
				Help: "Total number of deadlock reports",
			},
		),
		DeadlockSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ipcdbg_deadlock_actors",
				Help:    "Number of actors per detected cycle",
				Buckets: []float64{2, 3, 4, 6, 8, 16, 32},
			},
		),

		// Scenario metrics
		ScenarioRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcdbg_scenario_runs_total",
				Help: "Total number of scenario runs",
			},
			[]string{"scenario", "result"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipcdbg_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcdbg_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ipcdbg_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation records one resource operation. result is "ok" or an
// error kind.
func (m *Metrics) RecordOperation(kind, op, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(kind, op, result).Inc()
	m.OperationDuration.WithLabelValues(kind, op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalOps++
	if result != "ok" {
		m.snapshot.FailedOps++
	}
	m.mu.Unlock()
}

// RecordDeadlock records one deadlock report with the given cycle size
func (m *Metrics) RecordDeadlock(actors int) {
	if m == nil {
		return
	}
	m.DeadlocksDetected.Inc()
	m.DeadlockSize.Observe(float64(actors))

	m.mu.Lock()
	m.snapshot.Deadlocks++
	m.mu.Unlock()
}

// IncDetectorRuns counts one on-demand detection pass
func (m *Metrics) IncDetectorRuns() {
	if m == nil {
		return
	}
	m.DetectorRuns.Inc()
}

// SetActorsActive sets the number of live actors
func (m *Metrics) SetActorsActive(count int) {
	if m == nil {
		return
	}
	m.ActorsActive.Set(float64(count))
}

// IncActorsTotal increments the created actors counter
func (m *Metrics) IncActorsTotal() {
	if m == nil {
		return
	}
	m.ActorsTotal.Inc()
}

// SetResourcesActive sets the number of live resources of kind
func (m *Metrics) SetResourcesActive(kind string, count int) {
	if m == nil {
		return
	}
	m.ResourcesActive.WithLabelValues(kind).Set(float64(count))
}

// RecordScenario records a scenario run
func (m *Metrics) RecordScenario(name, result string) {
	if m == nil {
		return
	}
	m.ScenarioRuns.WithLabelValues(name, result).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AverageLatency = s.totalDuration / float64(s.TotalRequests)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
