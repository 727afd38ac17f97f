// Package interceptors holds the server interceptors wrapped around every
// gRPC call.
package interceptors

import (
	"google.golang.org/grpc"

	"github.com/goclaw/mnemo/pkg/logger"
)

// ChainBuilder assembles unary and stream interceptors in call order.
type ChainBuilder struct {
	unary  []grpc.UnaryServerInterceptor
	stream []grpc.StreamServerInterceptor
}

// NewChainBuilder creates an empty chain.
func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{}
}

// WithRecovery turns handler panics into codes.Internal. Add it first.
func (b *ChainBuilder) WithRecovery(log logger.Logger) *ChainBuilder {
	b.unary = append(b.unary, RecoveryUnaryInterceptor(log))
	b.stream = append(b.stream, RecoveryStreamInterceptor(log))
	return b
}

// WithRequestID propagates or assigns x-request-id.
func (b *ChainBuilder) WithRequestID() *ChainBuilder {
	b.unary = append(b.unary, RequestIDUnaryInterceptor())
	b.stream = append(b.stream, RequestIDStreamInterceptor())
	return b
}

// WithLogging logs each completed call.
func (b *ChainBuilder) WithLogging(log logger.Logger) *ChainBuilder {
	b.unary = append(b.unary, LoggingUnaryInterceptor(log))
	b.stream = append(b.stream, LoggingStreamInterceptor(log))
	return b
}

// WithMetrics records call counts and latency into m.
func (b *ChainBuilder) WithMetrics(m *Metrics) *ChainBuilder {
	b.unary = append(b.unary, MetricsUnaryInterceptor(m))
	b.stream = append(b.stream, MetricsStreamInterceptor(m))
	return b
}

// WithTracing starts a server span per call.
func (b *ChainBuilder) WithTracing() *ChainBuilder {
	b.unary = append(b.unary, TracingUnaryInterceptor())
	b.stream = append(b.stream, TracingStreamInterceptor())
	return b
}

// Build returns the chain as server options.
func (b *ChainBuilder) Build() []grpc.ServerOption {
	var opts []grpc.ServerOption
	if len(b.unary) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(b.unary...))
	}
	if len(b.stream) > 0 {
		opts = append(opts, grpc.ChainStreamInterceptor(b.stream...))
	}
	return opts
}
