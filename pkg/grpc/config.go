package grpc

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/goclaw/mnemo/config"
)

// Config holds gRPC server configuration.
type Config struct {
	// Address is the listen address, e.g. ":7421".
	Address string

	TLS       *TLSConfig
	Keepalive *KeepaliveConfig

	// MaxRecvMsgSize is the largest message the server accepts, in bytes.
	MaxRecvMsgSize int

	EnableReflection bool
	EnableTracing    bool

	// ReadinessInterval is how often readiness checks drive the health
	// status. Zero disables polling.
	ReadinessInterval time.Duration
}

// TLSConfig holds TLS and mTLS settings.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string

	// CAFile enables client certificate verification when ClientAuth is set.
	CAFile     string
	ClientAuth bool
}

// KeepaliveConfig holds server keepalive settings.
type KeepaliveConfig struct {
	MaxIdle     time.Duration
	MaxAge      time.Duration
	MaxAgeGrace time.Duration
	Time        time.Duration
	Timeout     time.Duration

	// MinTime is the minimum interval a client may ping at.
	MinTime             time.Duration
	PermitWithoutStream bool
}

// DefaultConfig returns a default gRPC server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":7421",
		MaxRecvMsgSize:    1 << 20,
		ReadinessInterval: 10 * time.Second,
		Keepalive: &KeepaliveConfig{
			MaxIdle:     5 * time.Minute,
			MaxAge:      time.Hour,
			MaxAgeGrace: time.Minute,
			Time:        time.Minute,
			Timeout:     20 * time.Second,
			MinTime:     30 * time.Second,
		},
	}
}

// FromServerConfig derives the gRPC configuration from the application
// server section.
func FromServerConfig(sc config.ServerConfig, tracing bool) *Config {
	cfg := DefaultConfig()
	cfg.Address = net.JoinHostPort(sc.Host, strconv.Itoa(sc.GRPC.Port))
	cfg.EnableReflection = sc.GRPC.EnableReflection
	cfg.EnableTracing = tracing
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if c.MaxRecvMsgSize < 0 {
		return fmt.Errorf("max recv message size cannot be negative")
	}
	if c.ReadinessInterval < 0 {
		return fmt.Errorf("readiness interval cannot be negative")
	}
	if c.TLS != nil && c.TLS.Enabled {
		if err := c.TLS.Validate(); err != nil {
			return fmt.Errorf("invalid TLS config: %w", err)
		}
	}
	if c.Keepalive != nil {
		if err := c.Keepalive.Validate(); err != nil {
			return fmt.Errorf("invalid keepalive config: %w", err)
		}
	}
	return nil
}

// Validate validates TLS configuration.
func (t *TLSConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.CertFile == "" || t.KeyFile == "" {
		return fmt.Errorf("cert and key files are required when TLS is enabled")
	}
	if t.ClientAuth && t.CAFile == "" {
		return fmt.Errorf("CA file is required when client auth is enabled")
	}
	return nil
}

// Validate validates keepalive configuration.
func (k *KeepaliveConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"max idle":      k.MaxIdle,
		"max age":       k.MaxAge,
		"max age grace": k.MaxAgeGrace,
		"time":          k.Time,
		"timeout":       k.Timeout,
		"min time":      k.MinTime,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	if k.Timeout > 0 && k.Time > 0 && k.Timeout >= k.Time {
		return fmt.Errorf("timeout must be less than ping interval")
	}
	return nil
}
