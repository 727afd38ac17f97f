// Package config provides configuration management for mnemo.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for mnemo.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage is the persistence configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Index is the lexical and vector index configuration.
	Index IndexConfig `mapstructure:"index"`

	// Embedding is the embedding provider configuration.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Memory holds the ranking, consolidation and evolution tunables.
	Memory MemoryConfig `mapstructure:"memory"`

	// Redis is the optional coordination backend.
	Redis RedisConfig `mapstructure:"redis"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP/gRPC server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// GRPC is the gRPC server configuration.
	GRPC GRPCConfig `mapstructure:"grpc"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// RateLimit throttles the HTTP API.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// WebSocket configures the event stream.
	WebSocket WebSocketConfig `mapstructure:"websocket"`

	// CORS configures cross-origin access to the API.
	CORS CORSConfig `mapstructure:"cors"`
}

// GRPCConfig holds gRPC settings. The gRPC server only serves health and
// reflection.
type GRPCConfig struct {
	// Enabled enables the gRPC server.
	Enabled bool `mapstructure:"enabled"`

	// Port is the gRPC server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// EnableReflection enables gRPC server reflection for debugging.
	EnableReflection bool `mapstructure:"enable_reflection"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// RequestTimeout bounds each API request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// RateLimitConfig configures the token bucket in front of the API.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the sustained rate.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`

	// Burst is the bucket size.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// WebSocketConfig configures the /ws/events stream.
type WebSocketConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxConnections int           `mapstructure:"max_connections" validate:"min=0"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `mapstructure:"max_age" validate:"min=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Type selects the backend: badger or sqlite.
	Type string `mapstructure:"type" validate:"oneof=badger sqlite"`

	// Badger is the Badger backend configuration.
	Badger BadgerConfig `mapstructure:"badger"`

	// SQLite is the SQLite backend configuration.
	SQLite SQLiteConfig `mapstructure:"sqlite"`

	// Cache is the read cache in front of the backend.
	Cache CacheConfig `mapstructure:"cache"`
}

// BadgerConfig holds Badger settings.
type BadgerConfig struct {
	// Path is the data directory.
	Path string `mapstructure:"path"`

	// InMemory keeps all data in memory.
	InMemory bool `mapstructure:"in_memory"`

	// SyncWrites fsyncs every write.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the size of each value log file in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size" validate:"min=0"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	Path string `mapstructure:"path"`

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// CacheConfig configures the memory read cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// NumCounters is the number of keys tracked for admission.
	NumCounters int64 `mapstructure:"num_counters" validate:"min=0"`

	// MaxCost is the cache capacity in bytes.
	MaxCost int64 `mapstructure:"max_cost" validate:"min=0"`
}

// IndexConfig holds the retrieval index settings.
type IndexConfig struct {
	// Vector selects the vector backend: hnsw or chromem.
	Vector string `mapstructure:"vector" validate:"oneof=hnsw chromem"`

	// BM25 tunes lexical scoring.
	BM25 BM25Config `mapstructure:"bm25"`

	// HNSW tunes the HNSW graph.
	HNSW HNSWConfig `mapstructure:"hnsw"`
}

// BM25Config holds BM25 parameters.
type BM25Config struct {
	K1 float64 `mapstructure:"k1" validate:"gt=0"`
	B  float64 `mapstructure:"b" validate:"gte=0,lte=1"`
}

// HNSWConfig holds HNSW graph parameters.
type HNSWConfig struct {
	// M is the maximum number of neighbours per node.
	M int `mapstructure:"m" validate:"min=2"`

	// EfSearch is the candidate list size during search.
	EfSearch int `mapstructure:"ef_search" validate:"min=1"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is none, ollama or hash.
	Provider string `mapstructure:"provider" validate:"oneof=none ollama hash"`

	// URL is the Ollama base URL.
	URL string `mapstructure:"url"`

	// Model is the embedding model name.
	Model string `mapstructure:"model"`

	// Dimensions is the vector length produced by the provider.
	Dimensions int `mapstructure:"dimensions" validate:"min=0"`

	// Timeout bounds one embedding request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// MemoryConfig holds the memory subsystem tunables.
type MemoryConfig struct {
	Decay         DecayConfig         `mapstructure:"decay"`
	Scope         ScopeConfig         `mapstructure:"scope"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	Evolution     EvolutionConfig     `mapstructure:"evolution"`
}

// DecayConfig holds the half-life per memory type.
type DecayConfig struct {
	Working    time.Duration `mapstructure:"working" validate:"gt=0"`
	Episodic   time.Duration `mapstructure:"episodic" validate:"gt=0"`
	Semantic   time.Duration `mapstructure:"semantic" validate:"gt=0"`
	Procedural time.Duration `mapstructure:"procedural" validate:"gt=0"`
}

// ScopeConfig holds promotion thresholds.
type ScopeConfig struct {
	// PromoteImportance is the minimum importance for session to project.
	PromoteImportance float64 `mapstructure:"promote_importance" validate:"gte=0,lte=1"`

	// PromoteAccessCount is the minimum access count for session to project.
	PromoteAccessCount int `mapstructure:"promote_access_count" validate:"min=1"`

	// PromoteSessions is the distinct session count for project to user.
	PromoteSessions int `mapstructure:"promote_sessions" validate:"min=1"`

	// MaxTrackedSessions caps per-memory session provenance.
	MaxTrackedSessions int `mapstructure:"max_tracked_sessions" validate:"min=1,max=1024"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	// RRFK is the reciprocal rank fusion constant.
	RRFK float64 `mapstructure:"rrf_k" validate:"gt=0"`

	// DefaultLimit is the result count when a request gives none.
	DefaultLimit int `mapstructure:"default_limit" validate:"min=1"`

	// MaxLimit caps the requested result count.
	MaxLimit int `mapstructure:"max_limit" validate:"min=1"`

	// CandidateLimit caps the ids fetched from the index per sub-score.
	CandidateLimit int `mapstructure:"candidate_limit" validate:"min=1"`

	// DefaultStrategy is used when a request gives no hint.
	DefaultStrategy string `mapstructure:"default_strategy" validate:"oneof=auto hybrid lexical fused"`

	// Merge selects how per-scope lists are combined: rrf or score.
	Merge string `mapstructure:"merge" validate:"oneof=rrf score"`

	// LogEnabled appends a retrieval log entry for every query.
	LogEnabled bool `mapstructure:"log_enabled"`
}

// ConsolidationConfig holds the consolidation pass settings.
type ConsolidationConfig struct {
	// Interval between scheduled passes; zero disables scheduling.
	Interval time.Duration `mapstructure:"interval"`

	// ArchiveThreshold is the strength below which memories are archived.
	ArchiveThreshold float64 `mapstructure:"archive_threshold" validate:"gt=0,lt=1"`

	// MergeThreshold is the cosine similarity for merging duplicates.
	MergeThreshold float64 `mapstructure:"merge_threshold" validate:"gt=0,lte=1"`

	// BatchSize caps queue items processed per pass.
	BatchSize int `mapstructure:"batch_size" validate:"min=1"`
}

// EvolutionConfig holds the evolution loop bounds.
type EvolutionConfig struct {
	// Interval between scheduled passes; zero disables scheduling.
	Interval time.Duration `mapstructure:"interval"`

	MinSamples     int     `mapstructure:"min_samples" validate:"min=1"`
	MinFeedback    int     `mapstructure:"min_feedback" validate:"min=1"`
	MaxStep        float64 `mapstructure:"max_step" validate:"gt=0,lte=0.5"`
	Gain           float64 `mapstructure:"gain" validate:"gt=0"`
	MinWeight      float64 `mapstructure:"min_weight" validate:"gt=0,lt=1"`
	MaxWeight      float64 `mapstructure:"max_weight" validate:"gt=0,lte=1,gtfield=MinWeight"`
	MinScopeWeight float64 `mapstructure:"min_scope_weight" validate:"gt=0"`
	MaxScopeWeight float64 `mapstructure:"max_scope_weight" validate:"gtfield=MinScopeWeight"`
	HistorySize    int     `mapstructure:"history_size" validate:"min=1,max=1000"`
	MaxEntries     int     `mapstructure:"max_entries" validate:"min=0"`
}

// RedisConfig holds the optional Redis connection used to serialise
// evolution commits across processes.
type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Address is host:port.
	Address string `mapstructure:"address"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`

	// KeyPrefix namespaces all keys.
	KeyPrefix string `mapstructure:"key_prefix"`

	// LockTTL bounds how long a crashed holder can block the gate.
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics HTTP port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Enabled enables tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the exporter type (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds one export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is always_on, always_off or traceidratio.
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off traceidratio"`

	// SamplerRatio is used by the traceidratio sampler.
	SamplerRatio float64 `mapstructure:"sampler_ratio" validate:"gte=0,lte=1"`

	// Insecure disables TLS to the collector.
	Insecure bool `mapstructure:"insecure"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return c.checkSemantics()
}

// checkSemantics covers rules that span fields.
func (c *Config) checkSemantics() error {
	if c.Memory.Retrieval.MaxLimit < c.Memory.Retrieval.DefaultLimit {
		return fmt.Errorf("memory.retrieval.max_limit (%d) is below default_limit (%d)",
			c.Memory.Retrieval.MaxLimit, c.Memory.Retrieval.DefaultLimit)
	}
	if c.Storage.Type == "badger" && !c.Storage.Badger.InMemory && c.Storage.Badger.Path == "" {
		return fmt.Errorf("storage.badger.path is required unless in_memory is set")
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required")
	}
	if c.Embedding.Provider == "ollama" && c.Embedding.URL == "" {
		return fmt.Errorf("embedding.url is required for the ollama provider")
	}
	if c.Embedding.Provider == "hash" && c.Embedding.Dimensions == 0 {
		return fmt.Errorf("embedding.dimensions is required for the hash provider")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}
	return nil
}

// HalfLives returns the decay half-lives keyed by memory type name.
func (d DecayConfig) HalfLives() map[string]time.Duration {
	return map[string]time.Duration{
		"working":    d.Working,
		"episodic":   d.Episodic,
		"semantic":   d.Semantic,
		"procedural": d.Procedural,
	}
}
