package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initStorageMetrics() {
	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Read cache lookups by result",
	}, []string{"result"})

	m.embeddings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_requests_total",
		Help:      "Embedding provider calls by provider and outcome",
	}, []string{"provider", "status"})

	m.registry.MustRegister(m.cacheLookups, m.embeddings)
}

// RecordCacheLookup counts a read cache hit or miss.
func (m *Manager) RecordCacheLookup(hit bool) {
	if !m.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordEmbedding counts an embedding provider call.
func (m *Manager) RecordEmbedding(provider string, err error) {
	if !m.enabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.embeddings.WithLabelValues(provider, status).Inc()
}
