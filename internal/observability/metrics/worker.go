package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	batchTotal      *prometheus.CounterVec
	batchDuration   *prometheus.HistogramVec
	articlesTotal   *prometheus.CounterVec
	indexDocuments  prometheus.Gauge
	upstreamRetries *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "worker",
			Name:      "ingest_batches_total",
			Help:      "Total ingested article batches by status.",
		},
		[]string{"service", "status"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fra",
			Subsystem: "worker",
			Name:      "ingest_duration_seconds",
			Help:      "Article batch ingestion duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	articlesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "worker",
			Name:      "articles_total",
			Help:      "Articles seen by the ingestion worker by outcome.",
		},
		[]string{"service", "outcome"},
	)
	indexDocuments := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fra",
			Subsystem: "worker",
			Name:      "index_documents",
			Help:      "Documents in the news indexes after the last batch.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	upstreamRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Total retried upstream calls by operation.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(batchTotal, batchDuration, articlesTotal, indexDocuments, upstreamRetries)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		batchTotal:      batchTotal,
		batchDuration:   batchDuration,
		articlesTotal:   articlesTotal,
		indexDocuments:  indexDocuments,
		upstreamRetries: upstreamRetries,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIngest satisfies usecase.IngestObserver.
func (m *WorkerMetrics) ObserveIngest(report domain.IngestReport, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.batchTotal.WithLabelValues(m.service, status).Inc()
	m.batchDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
	m.articlesTotal.WithLabelValues(m.service, "received").Add(float64(report.Received))
	if err != nil {
		return
	}
	m.articlesTotal.WithLabelValues(m.service, "indexed").Add(float64(report.Indexed))
	m.articlesTotal.WithLabelValues(m.service, "duplicate").Add(float64(report.Duplicates))
	m.indexDocuments.Set(float64(report.Total))
}

func (m *WorkerMetrics) ObserveRetry(operation string) {
	m.upstreamRetries.WithLabelValues(m.service, operation).Inc()
}

// ObserveBreakerState is a no-op; breaker transitions are already logged.
func (m *WorkerMetrics) ObserveBreakerState(string, string) {}
