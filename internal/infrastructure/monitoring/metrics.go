package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Launch metrics
	PhaseTransitions *prometheus.CounterVec
	RemoteCalls      *prometheus.CounterVec
	RemoteDuration   *prometheus.HistogramVec

	// Browsing session metrics
	Redirects          prometheus.Counter
	RedirectRecoveries *prometheus.CounterVec
	ChildSurfaces      prometheus.Gauge
	ExternalOpens      prometheus.Counter

	// Bridge metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WSConnections   prometheus.Gauge

	// Snapshot for the JSON API
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the bridge status endpoint
type Snapshot struct {
	Phase              string    `json:"phase"`
	PhaseChangedAt     time.Time `json:"phase_changed_at"`
	RemoteFailures     int64     `json:"remote_failures"`
	RedirectRecoveries int64     `json:"redirect_recoveries"`
	ChildSurfaces      int64     `json:"child_surfaces"`
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PhaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launch_phase_transitions_total",
				Help: "Total number of launch phase transitions",
			},
			[]string{"phase"},
		),
		RemoteCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launch_remote_calls_total",
				Help: "Total number of remote config and attribution calls",
			},
			[]string{"call", "outcome"},
		),
		RemoteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "launch_remote_call_duration_seconds",
				Help:    "Remote call duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"call"},
		),

		Redirects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_redirects_total",
				Help: "Total number of server-initiated redirects observed",
			},
		),
		RedirectRecoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browser_redirect_recoveries_total",
				Help: "Total number of redirect-loop recoveries",
			},
			[]string{"reason"},
		),
		ChildSurfaces: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "browser_child_surfaces",
				Help: "Number of open child surfaces",
			},
		),
		ExternalOpens: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "browser_external_opens_total",
				Help: "Total number of navigations handed to the platform opener",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_http_requests_total",
				Help: "Total number of bridge HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_http_request_duration_seconds",
				Help:    "Bridge HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
	}
}

// Registry exposes the underlying registry for gathering in tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPhase records a phase transition
func (m *Metrics) RecordPhase(phase string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(phase).Inc()

	m.mu.Lock()
	m.snapshot.Phase = phase
	m.snapshot.PhaseChangedAt = time.Now()
	m.mu.Unlock()
}

// RecordRemoteCall records one remote call and its outcome
func (m *Metrics) RecordRemoteCall(call, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(call, outcome).Inc()
	m.RemoteDuration.WithLabelValues(call).Observe(duration.Seconds())

	if outcome != "ok" {
		m.mu.Lock()
		m.snapshot.RemoteFailures++
		m.mu.Unlock()
	}
}

// IncRedirects counts one redirect
func (m *Metrics) IncRedirects() {
	if m == nil {
		return
	}
	m.Redirects.Inc()
}

// RecordRedirectRecovery counts a redirect-loop recovery
func (m *Metrics) RecordRedirectRecovery(reason string) {
	if m == nil {
		return
	}
	m.RedirectRecoveries.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.RedirectRecoveries++
	m.mu.Unlock()
}

// SetChildSurfaces sets the number of open child surfaces
func (m *Metrics) SetChildSurfaces(count int) {
	if m == nil {
		return
	}
	m.ChildSurfaces.Set(float64(count))

	m.mu.Lock()
	m.snapshot.ChildSurfaces = int64(count)
	m.mu.Unlock()
}

// IncExternalOpens counts a hand-off to the platform opener
func (m *Metrics) IncExternalOpens() {
	if m == nil {
		return
	}
	m.ExternalOpens.Inc()
}

// RecordHTTPRequest records a bridge HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
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
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
