package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initMemoryMetrics(cfg Config) {
	m.retrievals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrievals_total",
		Help:      "Retrieval calls by effective strategy and outcome",
	}, []string{"strategy", "status"})

	m.retrievalDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_duration_seconds",
		Help:      "Retrieval latency",
		Buckets:   cfg.RetrievalBuckets,
	}, []string{"strategy"})

	m.retrievalResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_results",
		Help:      "Results returned per retrieval",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	m.consolidationItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consolidation_items_total",
		Help:      "Consolidation queue items processed by action",
	}, []string{"action"})

	m.consolidationPasses = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "consolidation_pass_duration_seconds",
		Help:      "Consolidation pass duration",
		Buckets:   cfg.ConsolidationBuckets,
	})

	m.evolutionPasses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evolution_passes_total",
		Help:      "Evolution passes by outcome",
	}, []string{"outcome", "reason"})

	m.rankingWeight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ranking_weight",
		Help:      "Current composite ranking weight per component",
	}, []string{"component"})

	m.scopeWeight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scope_weight",
		Help:      "Current scope weight",
	}, []string{"scope"})

	m.memoryWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_writes_total",
		Help:      "Memory mutations by operation",
	}, []string{"operation"})

	m.registry.MustRegister(
		m.retrievals,
		m.retrievalDuration,
		m.retrievalResults,
		m.consolidationItems,
		m.consolidationPasses,
		m.evolutionPasses,
		m.rankingWeight,
		m.scopeWeight,
		m.memoryWrites,
	)
}

// RecordRetrieval records one retrieval call.
func (m *Manager) RecordRetrieval(strategy string, scopes, results int, duration time.Duration, err error) {
	if !m.enabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.retrievals.WithLabelValues(strategy, status).Inc()
	m.retrievalDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	if err == nil {
		m.retrievalResults.Observe(float64(results))
	}
}

// RecordConsolidation records the outcome counts of one pass.
func (m *Manager) RecordConsolidation(promoted, archived, merged, skipped, failed int, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.consolidationItems.WithLabelValues("promoted").Add(float64(promoted))
	m.consolidationItems.WithLabelValues("archived").Add(float64(archived))
	m.consolidationItems.WithLabelValues("merged").Add(float64(merged))
	m.consolidationItems.WithLabelValues("skipped").Add(float64(skipped))
	m.consolidationItems.WithLabelValues("failed").Add(float64(failed))
	m.consolidationPasses.Observe(duration.Seconds())
}

// RecordEvolution records an evolution pass outcome.
func (m *Manager) RecordEvolution(accepted bool, reason string) {
	if !m.enabled {
		return
	}
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.evolutionPasses.WithLabelValues(outcome, reason).Inc()
}

// SetWeights publishes the active ranking parameters.
func (m *Manager) SetWeights(lexical, vector, strength float64, scopes map[string]float64) {
	if !m.enabled {
		return
	}
	m.rankingWeight.WithLabelValues("lexical").Set(lexical)
	m.rankingWeight.WithLabelValues("vector").Set(vector)
	m.rankingWeight.WithLabelValues("strength").Set(strength)
	for scope, w := range scopes {
		m.scopeWeight.WithLabelValues(scope).Set(w)
	}
}

// RecordMemoryWrite counts a memory mutation.
func (m *Manager) RecordMemoryWrite(operation string) {
	if !m.enabled {
		return
	}
	m.memoryWrites.WithLabelValues(operation).Inc()
}
