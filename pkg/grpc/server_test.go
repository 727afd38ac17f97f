package grpc

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/grpc/interceptors"
	"github.com/goclaw/mnemo/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.NewWithWriter(io.Discard, logger.ErrorLevel, "json")
}

func startTestServer(t *testing.T, mutate func(*Config), opts ...Option) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := New(cfg, testLogger(), opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func healthClient(t *testing.T, srv *Server) grpc_health_v1.HealthClient {
	t.Helper()
	conn, err := ggrpc.NewClient(srv.Address(), ggrpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServer_ServingWithoutChecks(t *testing.T) {
	srv := startTestServer(t, nil)
	client := healthClient(t, srv)

	assert.True(t, srv.IsRunning())
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, checkStatus(t, client, ""))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, checkStatus(t, client, ServiceName))
}

func TestServer_ReadinessChecksDriveHealth(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	check := func(context.Context) error {
		if failing.Load() {
			return errors.New("store unavailable")
		}
		return nil
	}

	srv := startTestServer(t, func(c *Config) { c.ReadinessInterval = 20 * time.Millisecond }, WithReadinessChecks(check))
	client := healthClient(t, srv)

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, checkStatus(t, client, ServiceName))

	failing.Store(false)
	assert.Eventually(t, func() bool {
		return checkStatus(t, client, ServiceName) == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServer_RecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	srv := startTestServer(t, nil, WithMetrics(interceptors.NewMetrics(registry)))
	client := healthClient(t, srv)

	checkStatus(t, client, "")

	count, err := testutil.GatherAndCount(registry, "mnemo_grpc_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestServer_TracingEnabledCreatesSpan(t *testing.T) {
	recorder := setTestTracerProvider(t)
	srv := startTestServer(t, func(c *Config) { c.EnableTracing = true })

	checkStatus(t, healthClient(t, srv), "")

	require.Eventually(t, func() bool {
		for _, span := range recorder.Ended() {
			if span.Name() == "/grpc.health.v1.Health/Check" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_TracingDisabledNoSpan(t *testing.T) {
	recorder := setTestTracerProvider(t)
	srv := startTestServer(t, nil)

	checkStatus(t, healthClient(t, srv), "")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, recorder.Ended())
}

func TestServer_StartTwiceAndStopIdempotent(t *testing.T) {
	srv := startTestServer(t, nil)
	assert.Error(t, srv.Start())

	require.NoError(t, srv.Stop(context.Background()))
	assert.False(t, srv.IsRunning())
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.TLS = &TLSConfig{Enabled: true, CertFile: "server.pem"}
	_, err = New(cfg, testLogger())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Keepalive.Timeout = 2 * time.Minute
	_, err = New(cfg, testLogger())
	assert.Error(t, err)
}

func TestFromServerConfig(t *testing.T) {
	sc := config.DefaultConfig().Server
	sc.Host = "127.0.0.1"
	sc.GRPC.Port = 7500
	sc.GRPC.EnableReflection = true

	cfg := FromServerConfig(sc, true)
	assert.Equal(t, "127.0.0.1:7500", cfg.Address)
	assert.True(t, cfg.EnableReflection)
	assert.True(t, cfg.EnableTracing)
	assert.NoError(t, cfg.Validate())
}

func setTestTracerProvider(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return recorder
}
