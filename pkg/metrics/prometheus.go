package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections prometheus.Gauge

	// Signaling Metrics
	signalingEventsTotal     *prometheus.CounterVec
	protocolErrorsTotal      *prometheus.CounterVec
	relayBookkeepingFailures prometheus.Counter

	// Call Metrics
	callsActive      prometheus.Gauge
	callsDuration    *prometheus.HistogramVec
	callsFailedTotal *prometheus.CounterVec

	// Auth Metrics
	authAttemptsTotal *prometheus.CounterVec
	authFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	m := &Metrics{
		// HTTP Request Metrics
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),

		// WebSocket Metrics
		websocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),

		// Signaling Metrics
		signalingEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_events_total",
				Help:        "Total number of signaling events received",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"event"},
		),
		protocolErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_protocol_errors_total",
				Help:        "Total number of malformed or rejected signaling events",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"event"},
		),
		relayBookkeepingFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "signaling_relay_bookkeeping_failures_total",
				Help:        "Total number of session store failures absorbed while relaying",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),

		// Call Metrics
		callsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of active calls",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		callsDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "calls_duration_seconds",
				Help:        "Call duration in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"type"},
		),
		callsFailedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_failed_total",
				Help:        "Total number of failed calls",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"reason"},
		),

		// Auth Metrics
		authAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_attempts_total",
				Help:        "Total number of authentication attempts",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"method"},
		),
		authFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_failures_total",
				Help:        "Total number of authentication failures",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"method", "reason"},
		),
	}

	return m
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// IncWebSocketConnections increments the active connection gauge
func (m *Metrics) IncWebSocketConnections() {
	m.websocketConnections.Inc()
}

// DecWebSocketConnections decrements the active connection gauge
func (m *Metrics) DecWebSocketConnections() {
	m.websocketConnections.Dec()
}

// Signaling Metrics Methods

// IncSignalingEvent records a received signaling event
func (m *Metrics) IncSignalingEvent(event string) {
	m.signalingEventsTotal.WithLabelValues(event).Inc()
}

// IncProtocolError records a rejected signaling event
func (m *Metrics) IncProtocolError(event string) {
	m.protocolErrorsTotal.WithLabelValues(event).Inc()
}

// IncRelayBookkeepingFailure records a session store failure absorbed during relay
func (m *Metrics) IncRelayBookkeepingFailure() {
	m.relayBookkeepingFailures.Inc()
}

// Call Metrics Methods

// IncCallsActive increments the active call gauge
func (m *Metrics) IncCallsActive() {
	m.callsActive.Inc()
}

// DecCallsActive decrements the active call gauge
func (m *Metrics) DecCallsActive() {
	m.callsActive.Dec()
}

// ObserveCallDuration records the duration of a finished call
func (m *Metrics) ObserveCallDuration(callType string, duration time.Duration) {
	m.callsDuration.WithLabelValues(callType).Observe(duration.Seconds())
}

// IncCallFailed records a failed call
func (m *Metrics) IncCallFailed(reason string) {
	m.callsFailedTotal.WithLabelValues(reason).Inc()
}

// Auth Metrics Methods

// RecordAuthAttempt records an authentication attempt
func (m *Metrics) RecordAuthAttempt(method string) {
	m.authAttemptsTotal.WithLabelValues(method).Inc()
}

// RecordAuthFailure records an authentication failure
func (m *Metrics) RecordAuthFailure(method, reason string) {
	m.authFailuresTotal.WithLabelValues(method, reason).Inc()
}
