// Package grpc serves the gRPC health and reflection services so
// orchestrators can probe mnemo over gRPC as well as HTTP.
package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/goclaw/mnemo/pkg/grpc/interceptors"
	"github.com/goclaw/mnemo/pkg/logger"
)

// Server is a gRPC server exposing health and, optionally, reflection.
type Server struct {
	config  *Config
	logger  logger.Logger
	metrics *interceptors.Metrics
	checks  []ReadinessCheck

	grpcSrv      *grpc.Server
	listener     net.Listener
	healthServer *HealthServer
	cancelPoll   context.CancelFunc
	pollDone     chan struct{}
	mu           sync.RWMutex
	running      bool
}

// Option configures a Server.
type Option func(*Server)

// WithReadinessChecks sets the checks that drive the health status.
func WithReadinessChecks(checks ...ReadinessCheck) Option {
	return func(s *Server) {
		s.checks = append(s.checks, checks...)
	}
}

// WithMetrics records RPC metrics into m.
func WithMetrics(m *interceptors.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a new gRPC server with the given configuration.
func New(cfg *Config, log logger.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Server{
		config:       cfg,
		logger:       log.Named("grpc"),
		healthServer: NewHealthServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener

	opts, err := s.buildServerOptions()
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to build server options: %w", err)
	}

	s.grpcSrv = grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(s.grpcSrv, s.healthServer.GetServer())
	if s.config.EnableReflection {
		reflection.Register(s.grpcSrv)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancelPoll = cancel
	s.pollDone = make(chan struct{})
	if len(s.checks) > 0 && s.config.ReadinessInterval > 0 {
		go func() {
			defer close(s.pollDone)
			s.healthServer.Poll(pollCtx, s.config.ReadinessInterval, s.checks...)
		}()
	} else {
		s.healthServer.SetServing(true)
		close(s.pollDone)
	}

	s.running = true
	s.logger.Info("Starting gRPC server",
		"addr", listener.Addr().String(),
		"reflection", s.config.EnableReflection,
		"tls", s.config.TLS != nil && s.config.TLS.Enabled,
	)

	srv := s.grpcSrv
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("gRPC server failed", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight RPCs, forcing a stop when ctx ends first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	s.cancelPoll()
	<-s.pollDone
	s.healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcSrv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped")
		return nil
	case <-ctx.Done():
		s.grpcSrv.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}

// Health returns the health server.
func (s *Server) Health() *HealthServer {
	return s.healthServer
}

// Address returns the listening address, or the configured one before
// Start.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) buildServerOptions() ([]grpc.ServerOption, error) {
	var opts []grpc.ServerOption

	if s.config.TLS != nil && s.config.TLS.Enabled {
		creds, err := s.buildTLSCredentials()
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	if ka := s.config.Keepalive; ka != nil {
		opts = append(opts,
			grpc.KeepaliveParams(keepalive.ServerParameters{
				MaxConnectionIdle:     ka.MaxIdle,
				MaxConnectionAge:      ka.MaxAge,
				MaxConnectionAgeGrace: ka.MaxAgeGrace,
				Time:                  ka.Time,
				Timeout:               ka.Timeout,
			}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             ka.MinTime,
				PermitWithoutStream: ka.PermitWithoutStream,
			}),
		)
	}

	if s.config.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(s.config.MaxRecvMsgSize))
	}

	chain := interceptors.NewChainBuilder().
		WithRecovery(s.logger).
		WithRequestID().
		WithLogging(s.logger)
	if s.metrics != nil {
		chain = chain.WithMetrics(s.metrics)
	}
	if s.config.EnableTracing {
		chain = chain.WithTracing()
	}
	return append(opts, chain.Build()...), nil
}

func (s *Server) buildTLSCredentials() (credentials.TransportCredentials, error) {
	tlsCfg := s.config.TLS

	cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	conf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if !tlsCfg.ClientAuth {
		return credentials.NewTLS(conf), nil
	}

	caCert, err := os.ReadFile(tlsCfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	conf.ClientAuth = tls.RequireAndVerifyClientCert
	conf.ClientCAs = pool
	return credentials.NewTLS(conf), nil
}
