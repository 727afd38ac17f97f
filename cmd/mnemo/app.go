package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/coordination"
	"github.com/goclaw/mnemo/pkg/embedding"
	"github.com/goclaw/mnemo/pkg/index"
	"github.com/goclaw/mnemo/pkg/logger"
	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/goclaw/mnemo/pkg/metrics"
	"github.com/goclaw/mnemo/pkg/storage"
	"github.com/goclaw/mnemo/pkg/storage/badger"
	"github.com/goclaw/mnemo/pkg/storage/sqlite"
)

// app is the wired substrate shared by every command.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	metrics *metrics.Manager
	store   memory.Store
	redis   *redis.Client
	hub     *memory.Hub
}

// buildApp opens storage, the index, the embedder and the optional Redis
// gate, then opens the hub over them. Extra hub options are appended.
func buildApp(ctx context.Context, cfg *config.Config, log logger.Logger, hubOpts ...memory.Option) (*app, error) {
	a := &app{
		cfg: cfg,
		log: log,
		metrics: metrics.NewManager(metrics.Config{
			Enabled: cfg.Metrics.Enabled,
			Port:    cfg.Metrics.Port,
			Path:    cfg.Metrics.Path,
		}),
	}

	store, err := openStore(ctx, cfg, log, a.metrics)
	if err != nil {
		return nil, err
	}
	a.store = store

	idx, err := index.NewFromConfig(cfg.Index)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build index: %w", err)
	}

	opts := []memory.Option{
		memory.WithLogger(log.Named("memory")),
		memory.WithMetrics(a.metrics),
	}

	embedder, err := embedding.New(cfg.Embedding, a.metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	if embedder != nil {
		opts = append(opts, memory.WithEmbedder(embedder))
		log.Info("Embeddings enabled", "provider", embedder.Name(), "dimensions", embedder.Dimensions())
	} else {
		log.Info("Embeddings disabled, retrieval is lexical only")
	}

	if cfg.Redis.Enabled {
		client, err := coordination.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		opts = append(opts, memory.WithWriterGate(coordination.NewRedisGate(client, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL)))
		log.Info("Evolution writer gate enabled", "address", cfg.Redis.Address)
	}

	a.hub = memory.NewHub(&cfg.Memory, a.store, idx, append(opts, hubOpts...)...)
	if err := a.hub.Open(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("open memory hub: %w", err)
	}
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger, hits storage.HitRecorder) (memory.Store, error) {
	var (
		store memory.Store
		err   error
	)
	switch cfg.Storage.Type {
	case "sqlite":
		store, err = sqlite.Open(ctx, &sqlite.Config{
			Path:        cfg.Storage.SQLite.Path,
			BusyTimeout: cfg.Storage.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		log.Info("Initialized SQLite storage", "path", cfg.Storage.SQLite.Path)
	default:
		store, err = badger.New(&badger.Config{
			Path:             cfg.Storage.Badger.Path,
			InMemory:         cfg.Storage.Badger.InMemory,
			SyncWrites:       cfg.Storage.Badger.SyncWrites,
			ValueLogFileSize: cfg.Storage.Badger.ValueLogFileSize,
		}, log.Named("badger"))
		if err != nil {
			return nil, fmt.Errorf("open badger storage: %w", err)
		}
		log.Info("Initialized Badger storage", "path", cfg.Storage.Badger.Path, "in_memory", cfg.Storage.Badger.InMemory)
	}

	if !cfg.Storage.Cache.Enabled {
		return store, nil
	}
	cached, err := storage.NewCachedStore(store, storage.CacheConfig{
		NumCounters: cfg.Storage.Cache.NumCounters,
		MaxCost:     cfg.Storage.Cache.MaxCost,
	}, hits)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build read cache: %w", err)
	}
	return cached, nil
}

// readinessChecks returns the probes shared by /ready and gRPC health.
func (a *app) readinessChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"storage": func(ctx context.Context) error {
			_, err := a.store.ListMemories(ctx, memory.Filter{Limit: 1})
			return err
		},
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases storage and Redis. It is safe on a partially built app.
func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
