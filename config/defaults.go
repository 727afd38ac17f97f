package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "mnemo",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7420,
			GRPC: GRPCConfig{
				Enabled: false,
				Port:    7421,
			},
			HTTP: HTTPConfig{
				ReadTimeout:     15 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				RequestTimeout:  20 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 50,
				Burst:             100,
			},
			WebSocket: WebSocketConfig{
				Enabled:        true,
				MaxConnections: 32,
				PingInterval:   30 * time.Second,
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				ExposedHeaders: []string{"X-Request-ID"},
				MaxAge:         300,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path:             "./data/mnemo",
				SyncWrites:       false,
				ValueLogFileSize: 64 << 20, // 64MB
			},
			SQLite: SQLiteConfig{
				Path:        "./data/mnemo.db",
				BusyTimeout: 5 * time.Second,
			},
			Cache: CacheConfig{
				Enabled:     true,
				NumCounters: 100_000,
				MaxCost:     32 << 20, // 32MB
			},
		},
		Index: IndexConfig{
			Vector: "hnsw",
			BM25:   BM25Config{K1: 1.2, B: 0.75},
			HNSW:   HNSWConfig{M: 16, EfSearch: 64},
		},
		Embedding: EmbeddingConfig{
			Provider:   "none",
			URL:        "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    10 * time.Second,
		},
		Memory: MemoryConfig{
			Decay: DecayConfig{
				Working:    time.Hour,
				Episodic:   24 * time.Hour,
				Semantic:   168 * time.Hour,
				Procedural: 720 * time.Hour,
			},
			Scope: ScopeConfig{
				PromoteImportance:  0.5,
				PromoteAccessCount: 2,
				PromoteSessions:    3,
				MaxTrackedSessions: 16,
			},
			Retrieval: RetrievalConfig{
				RRFK:            60,
				DefaultLimit:    10,
				MaxLimit:        100,
				CandidateLimit:  100,
				DefaultStrategy: "auto",
				Merge:           "rrf",
				LogEnabled:      true,
			},
			Consolidation: ConsolidationConfig{
				Interval:         time.Hour,
				ArchiveThreshold: 0.05,
				MergeThreshold:   0.92,
				BatchSize:        500,
			},
			Evolution: EvolutionConfig{
				Interval:       6 * time.Hour,
				MinSamples:     20,
				MinFeedback:    10,
				MaxStep:        0.05,
				Gain:           0.5,
				MinWeight:      0.05,
				MaxWeight:      0.9,
				MinScopeWeight: 0.2,
				MaxScopeWeight: 2.0,
				HistorySize:    10,
				MaxEntries:     10000,
			},
		},
		Redis: RedisConfig{
			Enabled:     false,
			Address:     "localhost:6379",
			DB:          0,
			KeyPrefix:   "mnemo:",
			LockTTL:     30 * time.Second,
			DialTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9420,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "otlpgrpc",
			Endpoint:     "localhost:4317",
			Timeout:      5 * time.Second,
			Sampler:      "traceidratio",
			SamplerRatio: 0.1,
			Insecure:     true,
		},
	}
}
