package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/api"
	"github.com/goclaw/mnemo/pkg/api/events"
	"github.com/goclaw/mnemo/pkg/api/handlers"
	grpcsrv "github.com/goclaw/mnemo/pkg/grpc"
	"github.com/goclaw/mnemo/pkg/grpc/interceptors"
	"github.com/goclaw/mnemo/pkg/logger"
	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/goclaw/mnemo/pkg/telemetry/tracing"
	"github.com/goclaw/mnemo/pkg/version"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event stream and background passes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port > 0 {
				opts.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override HTTP port")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions) error {
	cfg, log := opts.cfg, opts.log

	log.Info("Starting mnemo",
		"version", version.Version,
		"git_commit", version.GitCommit,
		"environment", cfg.App.Environment,
		"storage", cfg.Storage.Type,
	)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	a, err := buildApp(ctx, cfg, log, memory.WithEvents(broadcaster))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()

	if a.metrics.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := a.metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("start memory hub: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.hub.Stop(sctx); err != nil {
			log.Warn("Memory hub stop failed", "error", err)
		}
	}()

	checks := a.readinessChecks()
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	slices.Sort(names)
	healthChecks := make([]handlers.Check, 0, len(names))
	grpcChecks := make([]grpcsrv.ReadinessCheck, 0, len(names))
	for _, name := range names {
		healthChecks = append(healthChecks, handlers.Check{Name: name, Check: checks[name]})
		grpcChecks = append(grpcChecks, checks[name])
	}

	apiHandlers := &api.Handlers{
		Memory:      handlers.NewMemoryHandler(a.hub, log),
		Retrieval:   handlers.NewRetrievalHandler(a.hub, log),
		Maintenance: handlers.NewMaintenanceHandler(a.hub, log),
		Health:      handlers.NewHealthHandler(func() uint64 { return a.hub.State().Version }, healthChecks...),
		Metrics:     a.metrics,
	}

	if cfg.Server.WebSocket.Enabled {
		ws := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
			AllowedOrigins: cfg.Server.WebSocket.AllowedOrigins,
			MaxConnections: cfg.Server.WebSocket.MaxConnections,
			PingInterval:   cfg.Server.WebSocket.PingInterval,
		}, a.metrics)
		defer ws.Close()
		go ws.Run(ctx, broadcaster)
		apiHandlers.WebSocket = ws
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)
	serverErr := make(chan error, 2)
	go func() {
		if err := httpServer.Start(); err != nil {
			serverErr <- err
		}
	}()

	if cfg.Server.GRPC.Enabled {
		grpcOpts := []grpcsrv.Option{grpcsrv.WithReadinessChecks(grpcChecks...)}
		if a.metrics.Enabled() {
			grpcOpts = append(grpcOpts, grpcsrv.WithMetrics(interceptors.NewMetrics(a.metrics.Registry())))
		}
		gs, err := grpcsrv.New(grpcsrv.FromServerConfig(cfg.Server, cfg.Tracing.Enabled), log, grpcOpts...)
		if err != nil {
			return fmt.Errorf("build gRPC server: %w", err)
		}
		if err := gs.Start(); err != nil {
			return fmt.Errorf("start gRPC server: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
			defer cancel()
			if err := gs.Stop(sctx); err != nil {
				log.Warn("gRPC server stop failed", "error", err)
			}
		}()
	}

	if path := opts.loader.Path(); path != "" {
		watchConfig(ctx, path, opts.loader, cfg, log, a.hub)
	}

	log.Info("mnemo is running",
		"http_addr", httpServer.Addr(),
		"grpc_enabled", cfg.Server.GRPC.Enabled,
		"metrics_port", cfg.Metrics.Port,
	)

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("Server error", "error", err)
		return err
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		return err
	}
	log.Info("mnemo stopped")
	return nil
}

// watchConfig applies hot-reloadable settings when the config file
// changes. Everything else needs a restart.
func watchConfig(ctx context.Context, path string, loader *config.Loader, cfg *config.Config, log logger.Logger, hub *memory.Hub) {
	w, err := config.NewWatcher(path, loader, config.WithWatcherLogger(log.Named("config")))
	if err != nil {
		log.Warn("Config hot reload disabled", "error", err)
		return
	}

	current := config.ExtractHotReloadable(cfg)
	w.OnChange(func(next *config.Config) {
		updated := config.ExtractHotReloadable(next)
		if current.LogLevelChanged(updated) {
			log.SetLevel(logger.ParseLevel(updated.LogLevel))
			log.Info("Log level changed", "level", updated.LogLevel)
		}
		if current.MemoryChanged(updated) {
			hub.Reconfigure(&updated.Memory)
		}
		current = updated
	})

	go func() {
		defer w.Stop()
		if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn("Config watcher stopped", "error", err)
		}
	}()
}
