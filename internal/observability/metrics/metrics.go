package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qualityhub_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qualityhub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qualityhub_login_attempts_total",
		Help: "Login attempts by outcome",
	}, []string{"result"})

	gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qualityhub_gate_decisions_total",
		Help: "Authorization gate stage outcomes",
	}, []string{"stage", "result"})

	tenantResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qualityhub_tenant_resolutions_total",
		Help: "Tenant resolutions by the layer that answered",
	}, []string{"source", "result"})

	tenantOverrides = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qualityhub_tenant_override_corrections_total",
		Help: "Request bodies whose tenantId was rewritten to the caller's tenant",
	})

	circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qualityhub_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"dependency"})

	sweptEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qualityhub_swept_entries_total",
		Help: "Expired in-memory entries removed by the sweeper",
	}, []string{"task"})

	activitySubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qualityhub_activity_subscribers",
		Help: "Open activity feed websocket connections",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLogin counts a login attempt: success, invalid_credentials or throttled.
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveGateDecision counts one gate stage outcome.
func ObserveGateDecision(stage, result string) {
	gateDecisions.WithLabelValues(stage, result).Inc()
}

// ObserveTenantResolution counts a resolver lookup. source is memory, redis
// or database.
func ObserveTenantResolution(source, result string) {
	tenantResolutions.WithLabelValues(source, result).Inc()
}

// IncTenantOverride counts a corrected body tenantId.
func IncTenantOverride() {
	tenantOverrides.Inc()
}

// SetCircuitState publishes a breaker state for dependency.
func SetCircuitState(dependency string, state int) {
	circuitState.WithLabelValues(dependency).Set(float64(state))
}

// AddActivitySubscribers adjusts the live feed connection gauge.
func AddActivitySubscribers(delta int) {
	activitySubscribers.Add(float64(delta))
}

// ObserveSweep counts entries removed by one sweeper task run.
func ObserveSweep(task string, removed int) {
	sweptEntries.WithLabelValues(task).Add(float64(removed))
}
