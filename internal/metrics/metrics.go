package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HandshakeSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashgate_handshake_steps_total",
			Help: "Captive portal handshake requests by step and outcome",
		},
		[]string{"step", "result"},
	)
	HandshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "splashgate_handshake_duration_seconds",
			Help:    "Latency of handshake endpoints",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"step"},
	)
	ControllerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashgate_controller_requests_total",
			Help: "Network controller API calls by operation and result",
		},
		[]string{"operation", "result"},
	)
	ControllerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "splashgate_controller_request_duration_seconds",
			Help:    "Latency of network controller API calls",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashgate_notifications_total",
			Help: "Login attempt reports sent to the notification sink",
		},
		[]string{"sink", "result"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "splashgate_sessions_active",
			Help: "Handshake sessions held by the in-memory store",
		},
	)
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashgate_rate_limit_hits_total",
			Help: "Requests rejected by the per-client rate guard",
		},
		[]string{"endpoint"},
	)
	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "splashgate_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"backend"},
	)
	CircuitTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashgate_circuit_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"backend", "from", "to"},
	)
	BuildInfo = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "splashgate_build_info",
			Help:        "Build info gauge with const labels",
			ConstLabels: prometheus.Labels{"version": "0.1.0"},
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		HandshakeSteps,
		HandshakeDuration,
		ControllerRequests,
		ControllerDuration,
		Notifications,
		ActiveSessions,
		RateLimitHits,
		CircuitState,
		CircuitTransitions,
		BuildInfo,
	)
	BuildInfo.Set(1)
}
