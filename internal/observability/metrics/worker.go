package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

// Results of a queued batch as seen by the worker.
const (
	QueuedSubmitted = "submitted"
	QueuedRejected  = "rejected"
	QueuedFailed    = "failed"
)

// WorkerMetrics tracks queued batch submissions handled by the worker.
type WorkerMetrics struct {
	registry *prometheus.Registry

	batches       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchSize     prometheus.Histogram
	inFlight      prometheus.Gauge
	queueLag      prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		registry: registry,
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queued_batches_total",
			Help:        "Queued FacturaSend batches handled, by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queued_batch_duration_seconds",
			Help:        "Time from pickup to finished KUDE follow-up for a queued batch.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"result"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queued_batch_documents",
			Help:        "Documents per queued batch.",
			ConstLabels: constLabels,
			Buckets:     []float64{1, 2, 5, 10, 20, 30, 40, 50},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queued_batches_in_flight",
			Help:        "Queued batches currently being submitted.",
			ConstLabels: constLabels,
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between a batch being queued and the worker picking it up.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
	}
	registry.MustRegister(m.batches, m.batchDuration, m.batchSize, m.inFlight, m.queueLag)
	return m
}

func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartBatch records pickup of a queued request.
func (m *WorkerMetrics) StartBatch(request domain.SubmissionRequest, now time.Time) {
	m.inFlight.Inc()
	m.batchSize.Observe(float64(len(request.Documents)))
	if !request.RequestedAt.IsZero() {
		if lag := now.Sub(request.RequestedAt); lag >= 0 {
			m.queueLag.Observe(lag.Seconds())
		}
	}
}

// FinishBatch returns the result label it recorded.
func (m *WorkerMetrics) FinishBatch(duration time.Duration, outcome *domain.Outcome, err error) string {
	m.inFlight.Dec()
	result := QueuedSubmitted
	switch {
	case err != nil:
		result = QueuedFailed
	case !outcome.Succeeded():
		result = QueuedRejected
	}
	m.batches.WithLabelValues(result).Inc()
	m.batchDuration.WithLabelValues(result).Observe(duration.Seconds())
	return result
}
