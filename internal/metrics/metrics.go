package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the voice layer and task store.
// All record methods are safe on a nil receiver so callers can run without
// metrics wired.
type Metrics struct {
	// Voice session metrics
	Sessions      *prometheus.CounterVec
	SessionErrors *prometheus.CounterVec

	// Command metrics
	Commands         *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Task mutation metrics
	Deletions   *prometheus.CounterVec
	Resolutions *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasker_voice_sessions_total",
				Help: "Total number of voice listening cycles by outcome",
			},
			[]string{"outcome"},
		),
		SessionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasker_voice_session_errors_total",
				Help: "Total number of speech capture failures by reason",
			},
			[]string{"reason"},
		),
		Commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasker_voice_commands_total",
				Help: "Total number of dispatched voice commands by intent",
			},
			[]string{"intent"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tasker_voice_dispatch_duration_seconds",
				Help:    "Time spent dispatching a voice command",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"intent"},
		),
		Deletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasker_task_deletions_total",
				Help: "Total number of task deletions requested by voice commands",
			},
			[]string{"outcome"},
		),
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasker_voice_resolutions_total",
				Help: "Total number of spoken task name lookups by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) RecordSession(outcome string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSessionError(reason string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(reason).Inc()
}

// RecordCommand counts one dispatched intent and its duration in seconds.
func (m *Metrics) RecordCommand(intent string, seconds float64) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(intent).Inc()
	m.DispatchDuration.WithLabelValues(intent).Observe(seconds)
}

func (m *Metrics) RecordDeletion(outcome string) {
	if m == nil {
		return
	}
	m.Deletions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordResolution(result string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(result).Inc()
}
