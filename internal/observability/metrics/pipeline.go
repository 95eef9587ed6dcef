package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

// PipelineMetrics tracks submission runs. It satisfies usecase.PipelineObserver
// and feeds circuit breaker transitions from the resilience executor.
type PipelineMetrics struct {
	service string

	submissionsTotal   *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
	inFlight           prometheus.Gauge
	stageDuration      *prometheus.HistogramVec
	stageErrorsTotal   *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

func NewPipelineMetrics(service string, reg prometheus.Registerer) *PipelineMetrics {
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "submissions_total",
			Help:      "Total finished submissions by terminal status.",
		},
		[]string{"service", "status"},
	)
	submissionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "submission_duration_seconds",
			Help:      "End-to-end submission duration in seconds by terminal status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "in_flight",
			Help:      "Number of submissions currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of a single pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "stage"},
	)
	stageErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Total failed pipeline stages.",
		},
		[]string{"service", "stage"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)

	reg.MustRegister(submissionsTotal, submissionDuration, inFlight, stageDuration, stageErrorsTotal, breakerState)

	return &PipelineMetrics{
		service:            service,
		submissionsTotal:   submissionsTotal,
		submissionDuration: submissionDuration,
		inFlight:           inFlight,
		stageDuration:      stageDuration,
		stageErrorsTotal:   stageErrorsTotal,
		breakerState:       breakerState,
	}
}

func (m *PipelineMetrics) StartSubmission() {
	m.inFlight.Inc()
}

func (m *PipelineMetrics) FinishSubmission(status domain.SubmissionStatus, duration time.Duration) {
	m.inFlight.Dec()
	m.submissionsTotal.WithLabelValues(m.service, string(status)).Inc()
	m.submissionDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveStage(stage domain.PipelineStage, duration time.Duration, err error) {
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(duration.Seconds())
	if err != nil {
		m.stageErrorsTotal.WithLabelValues(m.service, string(stage)).Inc()
	}
}

// ObserveBreaker matches resilience.StateObserver.
func (m *PipelineMetrics) ObserveBreaker(operation string, _ gobreaker.State, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(v)
}
