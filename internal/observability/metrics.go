package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scribe_active_sessions",
		Help: "Number of active recording sessions",
	})

	totalSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_sessions_total",
		Help: "Total number of recording sessions by outcome",
	}, []string{"outcome"}) // outcome: "started", "failed", "cancelled"

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scribe_session_duration_seconds",
		Help:    "Duration of recording sessions in seconds",
		Buckets: []float64{10, 30, 60, 300, 600, 1200, 1800, 3600},
	})

	initLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scribe_session_init_seconds",
		Help:    "Realtime transport initialization latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"backend", "status"})

	// Transcript metrics
	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_segments_total",
		Help: "Total number of completed transcript segments",
	}, []string{"speaker"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_events_total",
		Help: "Total number of control-channel events routed",
	}, []string{"kind"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scribe_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Metrics tracks metrics for a single recording session
type Metrics struct {
	sessionID string
	backend   string
	startTime time.Time
	initStart time.Time
	started   bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID, backend string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		backend:   backend,
	}
}

// RecordInitStart records the start of transport initialization
func (m *Metrics) RecordInitStart() {
	m.mu.Lock()
	m.initStart = time.Now()
	m.mu.Unlock()
}

// RecordInitEnd records the outcome of transport initialization.
// A successful init marks the session active until RecordSessionEnd.
func (m *Metrics) RecordInitEnd(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := "success"
	if outcome != "started" {
		status = "error"
	}
	if !m.initStart.IsZero() {
		initLatency.WithLabelValues(m.backend, status).Observe(time.Since(m.initStart).Seconds())
	}
	totalSessions.WithLabelValues(outcome).Inc()

	if outcome == "started" {
		m.started = true
		m.startTime = time.Now()
		activeSessions.Inc()
	}
}

// RecordSessionEnd records the end of an active session
func (m *Metrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	m.started = false
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordSegment records a completed transcript segment
func (m *Metrics) RecordSegment(speaker string) {
	segmentsTotal.WithLabelValues(speaker).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordEvent counts one routed control-channel event
func RecordEvent(kind string) {
	eventsTotal.WithLabelValues(kind).Inc()
}

// RecordError records an error outside a session
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
