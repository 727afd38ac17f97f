// Package metrics exposes Prometheus instrumentation for mnemo.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mnemo"

// Manager owns the metrics registry. A disabled Manager accepts every call
// and records nothing.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Memory metrics
	retrievals          *prometheus.CounterVec
	retrievalDuration   *prometheus.HistogramVec
	retrievalResults    prometheus.Histogram
	consolidationItems  *prometheus.CounterVec
	consolidationPasses prometheus.Histogram
	evolutionPasses     *prometheus.CounterVec
	rankingWeight       *prometheus.GaugeVec
	scopeWeight         *prometheus.GaugeVec
	memoryWrites        *prometheus.CounterVec

	// Storage metrics
	cacheLookups *prometheus.CounterVec
	embeddings   *prometheus.CounterVec

	// HTTP metrics
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpConnections prometheus.Gauge
	wsClients       prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	RetrievalBuckets     []float64
	ConsolidationBuckets []float64
	HTTPDurationBuckets  []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		Port:                 9420,
		Path:                 "/metrics",
		RetrievalBuckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConsolidationBuckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		HTTPDurationBuckets:  []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager creates a metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return NoOpManager()
	}
	def := DefaultConfig()
	if len(cfg.RetrievalBuckets) == 0 {
		cfg.RetrievalBuckets = def.RetrievalBuckets
	}
	if len(cfg.ConsolidationBuckets) == 0 {
		cfg.ConsolidationBuckets = def.ConsolidationBuckets
	}
	if len(cfg.HTTPDurationBuckets) == 0 {
		cfg.HTTPDurationBuckets = def.HTTPDurationBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{registry: registry, enabled: true}
	m.initMemoryMetrics(cfg)
	m.initStorageMetrics()
	m.initHTTPMetrics(cfg)
	return m
}

// NoOpManager returns a disabled manager.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves the metrics endpoint on its own port until ctx ends.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
