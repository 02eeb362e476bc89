package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics provides Prometheus metrics for resolution and installation.
// All record methods are safe to call on a nil or disabled Metrics.
type Metrics struct {
	config MetricsConfig

	// Resolution metrics
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	artifactsResolved  *prometheus.CounterVec

	// Lifecycle metrics
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	policyViolations   *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// Configuration
	configReloads *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of top-level specification resolutions",
			},
			[]string{"scheme", "status"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of top-level resolutions in seconds",
				Buckets:   buckets,
			},
			[]string{"scheme"},
		),
		artifactsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_resolved_total",
				Help:      "Total number of artifacts produced by resolution",
			},
			[]string{"scheme"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_transitions_total",
				Help:      "Total number of lifecycle transitions attempted",
			},
			[]string{"transition", "status"},
		),
		transitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "install_duration_seconds",
				Help:      "Duration of lifecycle transitions in seconds",
				Buckets:   buckets,
			},
			[]string{"transition"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of admission policy violations",
			},
			[]string{"policy", "severity"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of configuration pushes",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.resolutions,
		m.resolutionDuration,
		m.artifactsResolved,
		m.transitions,
		m.transitionDuration,
		m.policyViolations,
		m.errorsByClass,
		m.configReloads,
	)

	return m, nil
}

// RecordResolution records a completed top-level resolution.
func (m *Metrics) RecordResolution(scheme, status string, artifacts int, duration time.Duration) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(scheme, status).Inc()
	m.resolutionDuration.WithLabelValues(scheme).Observe(duration.Seconds())
	if artifacts > 0 {
		m.artifactsResolved.WithLabelValues(scheme).Add(float64(artifacts))
	}
}

// RecordTransition records one lifecycle transition attempt.
func (m *Metrics) RecordTransition(transition, status string, duration time.Duration) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(transition, status).Inc()
	m.transitionDuration.WithLabelValues(transition).Observe(duration.Seconds())
}

// RecordPolicyViolation records an admission policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m == nil || m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// RecordError increments the error counter for class.
func (m *Metrics) RecordError(class string) {
	if m == nil || m.errorsByClass == nil || class == "" {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// RecordConfigReload records a configuration push.
func (m *Metrics) RecordConfigReload(status string) {
	if m == nil || m.configReloads == nil {
		return
	}
	m.configReloads.WithLabelValues(status).Inc()
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewMetricsServer returns an HTTP server exposing the metrics endpoint, or nil when disabled.
func (m *Metrics) NewMetricsServer() *http.Server {
	if m == nil || !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	return &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
