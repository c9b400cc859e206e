package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

const namespace = "fsw"

// WorkflowMetrics implements ports.WorkflowObserver.
type WorkflowMetrics struct {
	service string

	submissionsTotal   *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
	itemErrors         *prometheus.HistogramVec
	kudeTotal          *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

func NewWorkflowMetrics(service string, registerer prometheus.Registerer) *WorkflowMetrics {
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "submissions_total",
			Help:      "Total submission round trips by action and outcome.",
		},
		[]string{"service", "action", "success"},
	)
	submissionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "submission_duration_seconds",
			Help:      "Submission round trip duration in seconds, follow-up included.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
		},
		[]string{"service", "action"},
	)
	itemErrors := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "submission_item_errors",
			Help:      "Item-level errors reported per failed submission.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"service", "action"},
	)
	kudeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "kude_requests_total",
			Help:      "Total KUDE retrievals by strategy and result.",
		},
		[]string{"service", "strategy", "result"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(submissionsTotal, submissionDuration, itemErrors, kudeTotal, breakerState)

	return &WorkflowMetrics{
		service:            service,
		submissionsTotal:   submissionsTotal,
		submissionDuration: submissionDuration,
		itemErrors:         itemErrors,
		kudeTotal:          kudeTotal,
		breakerState:       breakerState,
	}
}

func (m *WorkflowMetrics) ObserveSubmission(action domain.Action, success bool, itemErrors int, duration time.Duration) {
	m.submissionsTotal.WithLabelValues(m.service, string(action), strconv.FormatBool(success)).Inc()
	m.submissionDuration.WithLabelValues(m.service, string(action)).Observe(duration.Seconds())
	if !success {
		m.itemErrors.WithLabelValues(m.service, string(action)).Observe(float64(itemErrors))
	}
}

func (m *WorkflowMetrics) ObserveKude(strategy domain.KudeStrategy, result string) {
	if result == "" {
		result = "unknown"
	}
	m.kudeTotal.WithLabelValues(m.service, string(strategy), result).Inc()
}

// ObserveBreakerState matches resilience.Config.OnStateChange.
func (m *WorkflowMetrics) ObserveBreakerState(operation string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(m.service, operation).Set(float64(to))
}
