package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/temcen/shoprec/pkg/models"
)

// EngineMetrics holds the Prometheus collectors of the recommendation engine.
// A nil *EngineMetrics records nothing.
type EngineMetrics struct {
	strategyLatency  *prometheus.HistogramVec
	strategyFailures *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	cacheWriteErrors *prometheus.CounterVec
	resultSize       *prometheus.HistogramVec
	profileEvents    *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)

	return &EngineMetrics{
		strategyLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recommendation_strategy_latency_seconds",
			Help:    "Strategy scoring latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 1.5},
		}, []string{"strategy"}),

		strategyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_strategy_failures_total",
			Help: "Strategy evaluations that contributed nothing because of an error or timeout",
		}, []string{"strategy", "reason"}),

		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_cache_requests_total",
			Help: "Strategy cache lookups by result",
		}, []string{"strategy", "result"}),

		cacheWriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_cache_write_errors_total",
			Help: "Failed strategy cache writes",
		}, []string{"strategy"}),

		resultSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recommendation_result_size",
			Help:    "Number of recommendations returned per call",
			Buckets: []float64{0, 1, 5, 10, 20, 50},
		}, []string{"operation"}),

		profileEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_profile_events_total",
			Help: "Interaction events applied to user profiles",
		}, []string{"type"}),
	}
}

func (m *EngineMetrics) observeStrategy(name models.StrategyName, latency time.Duration) {
	if m == nil {
		return
	}
	m.strategyLatency.WithLabelValues(string(name)).Observe(latency.Seconds())
}

func (m *EngineMetrics) strategyFailed(name models.StrategyName, reason string) {
	if m == nil {
		return
	}
	m.strategyFailures.WithLabelValues(string(name), reason).Inc()
}

func (m *EngineMetrics) cacheResult(name models.StrategyName, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(string(name), result).Inc()
}

func (m *EngineMetrics) cacheWriteFailed(name models.StrategyName) {
	if m == nil {
		return
	}
	m.cacheWriteErrors.WithLabelValues(string(name)).Inc()
}

func (m *EngineMetrics) observeResult(operation string, size int) {
	if m == nil {
		return
	}
	m.resultSize.WithLabelValues(operation).Observe(float64(size))
}

func (m *EngineMetrics) profileEvent(t models.InteractionType) {
	if m == nil {
		return
	}
	m.profileEvents.WithLabelValues(string(t)).Inc()
}
