package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal      *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec
	queryCostUSD      *prometheus.CounterVec
	queryFailures     *prometheus.CounterVec
	prefetchTotal     *prometheus.CounterVec
	specialistSubmits *prometheus.CounterVec
	specialistRuns    *prometheus.CounterVec
	specialistSeconds *prometheus.HistogramVec
	upstreamRetries   *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fra",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fra",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "orchestrator",
			Name:      "queries_total",
			Help:      "Total answered queries by agent path and decision reason.",
		},
		[]string{"service", "agent", "reason"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fra",
			Subsystem: "orchestrator",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds by agent path.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"service", "agent"},
	)
	queryCostUSD := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "orchestrator",
			Name:      "cost_usd_total",
			Help:      "Accumulated LLM cost in USD by agent path.",
		},
		[]string{"service", "agent"},
	)
	queryFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "orchestrator",
			Name:      "failures_total",
			Help:      "Total failed queries by stage.",
		},
		[]string{"service", "stage"},
	)
	prefetchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "orchestrator",
			Name:      "prefetch_total",
			Help:      "Total submitted specialist pre-fetches by type and reason.",
		},
		[]string{"service", "specialist", "reason"},
	)
	specialistSubmits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "specialist",
			Name:      "submits_total",
			Help:      "Total specialist submissions; deduplicated submissions joined an existing task.",
		},
		[]string{"service", "specialist", "deduplicated"},
	)
	specialistRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fra",
			Subsystem: "specialist",
			Name:      "runs_total",
			Help:      "Total completed specialist runs by status.",
		},
		[]string{"service", "specialist", "status"},
	)
	specialistSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fra",
			Subsystem: "specialist",
			Name:      "run_duration_seconds",
			Help:      "Specialist run duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"service", "specialist"},
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
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fra",
			Subsystem: "upstream",
			Name:      "circuit_state",
			Help:      "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		queryDuration,
		queryCostUSD,
		queryFailures,
		prefetchTotal,
		specialistSubmits,
		specialistRuns,
		specialistSeconds,
		upstreamRetries,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		service:           service,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		queriesTotal:      queriesTotal,
		queryDuration:     queryDuration,
		queryCostUSD:      queryCostUSD,
		queryFailures:     queryFailures,
		prefetchTotal:     prefetchTotal,
		specialistSubmits: specialistSubmits,
		specialistRuns:    specialistRuns,
		specialistSeconds: specialistSeconds,
		upstreamRetries:   upstreamRetries,
		breakerState:      breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sessions/"):
		return "/v1/sessions/{session_id}"
	default:
		return path
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
