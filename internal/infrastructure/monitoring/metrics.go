package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every recording method is safe to
// call on a nil *Metrics so packages can run without a collector.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Controller metrics
	ControlCommands *prometheus.CounterVec
	ControlEvents   *prometheus.CounterVec

	// Tree metrics
	NodesActive    prometheus.Gauge
	NodesCreated   prometheus.Counter
	Reloads        prometheus.Counter
	RoutingErrors  prometheus.Counter
	ProtocolErrors *prometheus.CounterVec
	InertCommands  *prometheus.CounterVec

	// Sandbox metrics
	SandboxOps      *prometheus.CounterVec
	SandboxDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	Commands          int64   `json:"commands"`
	Events            int64   `json:"events"`
	Errors            int64   `json:"errors"`
	ActiveNodes       int64   `json:"activeNodes"`
	ActiveConnections int64   `json:"activeConnections"`
	Uptime            float64 `json:"uptimeSeconds"`
}

// NewMetrics creates a new metrics collector backed by its own registry.
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
				Name: "sandtree_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandtree_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Controller metrics
		ControlCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandtree_control_commands_total",
				Help: "Total number of controller commands received",
			},
			[]string{"type"},
		),
		ControlEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandtree_control_events_total",
				Help: "Total number of events emitted to controllers",
			},
			[]string{"type"},
		),

		// Tree metrics
		NodesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandtree_nodes_active",
				Help: "Number of open sandbox windows at every depth",
			},
		),
		NodesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandtree_nodes_created_total",
				Help: "Total number of sandbox windows opened",
			},
		),
		Reloads: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandtree_reloads_total",
				Help: "Total number of window reloads",
			},
		),
		RoutingErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandtree_routing_errors_total",
				Help: "Commands addressed to an unknown node",
			},
		),
		ProtocolErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandtree_protocol_errors_total",
				Help: "Malformed or unknown messages dropped",
			},
			[]string{"kind"},
		),
		InertCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandtree_inert_commands_total",
				Help: "Commands ignored because the node state did not accept them",
			},
			[]string{"command", "state"},
		),

		// Sandbox metrics
		SandboxOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandtree_sandbox_ops_total",
				Help: "Total number of sandbox fill and exec operations",
			},
			[]string{"op", "status"},
		),
		SandboxDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandtree_sandbox_duration_seconds",
				Help:    "Sandbox operation duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"op"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandtree_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandtree_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	// System metrics
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sandtree_uptime_seconds",
			Help: "Host uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCommand records a controller command by type.
func (m *Metrics) RecordCommand(kind string) {
	if m == nil {
		return
	}
	m.ControlCommands.WithLabelValues(kind).Inc()

	m.mu.Lock()
	m.snapshot.Commands++
	m.mu.Unlock()
}

// RecordEvent records an event sent to controllers.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.ControlEvents.WithLabelValues(kind).Inc()

	m.mu.Lock()
	m.snapshot.Events++
	m.mu.Unlock()
}

// NodeOpened tracks a newly opened window.
func (m *Metrics) NodeOpened() {
	if m == nil {
		return
	}
	m.NodesActive.Inc()
	m.NodesCreated.Inc()

	m.mu.Lock()
	m.snapshot.ActiveNodes++
	m.mu.Unlock()
}

// NodeClosed tracks a closed window.
func (m *Metrics) NodeClosed() {
	if m == nil {
		return
	}
	m.NodesActive.Dec()

	m.mu.Lock()
	m.snapshot.ActiveNodes--
	m.mu.Unlock()
}

// IncReloads counts a window reload.
func (m *Metrics) IncReloads() {
	if m == nil {
		return
	}
	m.Reloads.Inc()
}

// RecordRoutingError counts a command addressed to an unknown node.
func (m *Metrics) RecordRoutingError() {
	if m == nil {
		return
	}
	m.RoutingErrors.Inc()
	m.countError()
}

// RecordProtocolError counts a dropped malformed message.
func (m *Metrics) RecordProtocolError(kind string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(kind).Inc()
	m.countError()
}

// RecordInert counts a command the node state did not accept.
func (m *Metrics) RecordInert(command, state string) {
	if m == nil {
		return
	}
	m.InertCommands.WithLabelValues(command, state).Inc()
}

// RecordSandboxOp records a fill or exec outcome.
func (m *Metrics) RecordSandboxOp(op, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SandboxOps.WithLabelValues(op, status).Inc()
	m.SandboxDuration.WithLabelValues(op).Observe(duration.Seconds())
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

	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()

	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.Uptime = time.Since(m.startTime).Seconds()
	return s
}

func (m *Metrics) countError() {
	m.mu.Lock()
	m.snapshot.Errors++
	m.mu.Unlock()
}
