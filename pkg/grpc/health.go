package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name clients probe for the memory
// substrate. The empty name reports overall server health.
const ServiceName = "mnemo.Memory"

// ReadinessCheck reports whether the substrate can serve.
type ReadinessCheck func(ctx context.Context) error

// HealthServer wraps the gRPC health check server.
type HealthServer struct {
	server *health.Server
}

// NewHealthServer creates a health server reporting NOT_SERVING until the
// first successful readiness check.
func NewHealthServer() *HealthServer {
	h := &HealthServer{server: health.NewServer()}
	h.SetServing(false)
	return h
}

// SetServing flips both the overall and the memory service status.
func (h *HealthServer) SetServing(ok bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(ServiceName, st)
}

// Poll runs checks every interval until ctx ends. Any failing check marks
// the server NOT_SERVING.
func (h *HealthServer) Poll(ctx context.Context, interval time.Duration, checks ...ReadinessCheck) {
	probe := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		for _, check := range checks {
			if err := check(cctx); err != nil {
				h.SetServing(false)
				return
			}
		}
		h.SetServing(true)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *HealthServer) Shutdown() {
	h.server.Shutdown()
}

// GetServer returns the underlying health server for registration.
func (h *HealthServer) GetServer() *health.Server {
	return h.server
}
