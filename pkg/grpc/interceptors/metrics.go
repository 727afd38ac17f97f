package interceptors

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics holds Prometheus collectors for gRPC instrumentation.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
}

// NewMetrics creates gRPC metrics on registerer. Collectors that are
// already registered are reused, so one registry can back several servers.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mnemo",
				Name:      "grpc_requests_total",
				Help:      "Total number of gRPC requests.",
			},
			[]string{"method", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mnemo",
				Name:      "grpc_request_duration_seconds",
				Help:      "Duration of gRPC requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mnemo",
				Name:      "grpc_in_flight",
				Help:      "In-flight gRPC requests.",
			},
			[]string{"method"},
		),
	}
	m.requests = register(registerer, m.requests)
	m.duration = register(registerer, m.duration)
	m.inflight = register(registerer, m.inflight)
	return m
}

// MetricsUnaryInterceptor collects metrics for unary RPCs.
func MetricsUnaryInterceptor(m *Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		done := m.observe(info.FullMethod)
		resp, err := handler(ctx, req)
		done(err)
		return resp, err
	}
}

// MetricsStreamInterceptor collects metrics for streaming RPCs.
func MetricsStreamInterceptor(m *Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		done := m.observe(info.FullMethod)
		err := handler(srv, ss)
		done(err)
		return err
	}
}

func (m *Metrics) observe(method string) func(error) {
	start := time.Now()
	m.inflight.WithLabelValues(method).Inc()
	return func(err error) {
		m.inflight.WithLabelValues(method).Dec()
		m.requests.WithLabelValues(method, status.Code(err).String()).Inc()
		m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
