package metrics

import (
	"strconv"
	"time"
)

// The methods below satisfy usecase.QueryObserver, specialistpool.Observer
// and resilience.Observer.

func (m *HTTPServerMetrics) ObserveQuery(agent, reason string, costUSD float64, duration time.Duration) {
	m.queriesTotal.WithLabelValues(m.service, agent, reason).Inc()
	m.queryDuration.WithLabelValues(m.service, agent).Observe(duration.Seconds())
	if costUSD > 0 {
		m.queryCostUSD.WithLabelValues(m.service, agent).Add(costUSD)
	}
}

func (m *HTTPServerMetrics) ObserveQueryFailure(stage string) {
	m.queryFailures.WithLabelValues(m.service, stage).Inc()
}

func (m *HTTPServerMetrics) ObservePrefetch(specialistType, reason string) {
	m.prefetchTotal.WithLabelValues(m.service, specialistType, reason).Inc()
}

func (m *HTTPServerMetrics) ObserveSpecialistSubmit(specialistType string, deduplicated bool) {
	m.specialistSubmits.WithLabelValues(m.service, specialistType, strconv.FormatBool(deduplicated)).Inc()
}

func (m *HTTPServerMetrics) ObserveSpecialistRun(specialistType, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.specialistRuns.WithLabelValues(m.service, specialistType, status).Inc()
	m.specialistSeconds.WithLabelValues(m.service, specialistType).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveRetry(operation string) {
	m.upstreamRetries.WithLabelValues(m.service, operation).Inc()
}

func (m *HTTPServerMetrics) ObserveBreakerState(operation, state string) {
	m.breakerState.WithLabelValues(m.service, operation).Set(breakerStateValue(state))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
