package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "MNEMO_"
	// EnvNesting separates nested keys in environment variable names.
	EnvNesting = "__"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// searchPaths are tried in order when no config file is given.
var searchPaths = []string{
	"mnemo.yaml",
	"mnemo.yml",
	"mnemo.json",
	"configs/mnemo.yaml",
	"/etc/mnemo/config.yaml",
}

// Loader layers configuration sources with koanf. Later sources override
// earlier ones: defaults, file, environment, explicit overrides.
type Loader struct {
	k    *koanf.Koanf
	path string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load loads configuration from all sources. An empty configPath searches
// the standard locations and tolerates finding nothing.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	l.k = koanf.New(Delimiter)

	if err := l.k.Load(confmap.Provider(flatten(DefaultConfig()), Delimiter), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := configPath
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := l.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	l.path = path

	if err := l.k.Load(env.Provider(EnvPrefix, Delimiter, envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path returns the config file used by the last Load, if any.
func (l *Loader) Path() string {
	return l.path
}

func (l *Loader) loadFile(path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %s", path)
	}
	return l.k.Load(file.Provider(path), parser)
}

func findConfigFile() string {
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps MNEMO_SERVER__PORT to server.port and
// MNEMO_MEMORY__RETRIEVAL__RRF_K to memory.retrieval.rrf_k.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, EnvNesting, Delimiter)
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) error {
	return l.k.Set(key, value)
}

// Print renders the loaded key/value pairs for debugging.
func (l *Loader) Print() string {
	return l.k.Sprint()
}

// sensitiveKeys are masked by Redacted.
var sensitiveKeys = []string{"redis.password", "tracing.headers"}

// Redacted returns the loaded configuration as a nested map with secrets
// masked.
func (l *Loader) Redacted() map[string]interface{} {
	k := l.k.Copy()
	for _, key := range sensitiveKeys {
		if k.Exists(key) && !isZero(k.Get(key)) {
			_ = k.Set(key, "[redacted]")
		}
	}
	return k.Raw()
}

func isZero(v interface{}) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

// flatten converts a struct into dot-separated keys using mapstructure tags,
// so defaults merge key by key instead of replacing whole sections.
func flatten(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	flattenInto(out, reflect.ValueOf(v), "")
	return out
}

func flattenInto(out map[string]interface{}, val reflect.Value, prefix string) {
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + Delimiter + tag
		}
		fv := val.Field(i)
		switch fv.Kind() {
		case reflect.Struct:
			flattenInto(out, fv, key)
		case reflect.Slice:
			items := make([]interface{}, fv.Len())
			for j := range items {
				items[j] = fv.Index(j).Interface()
			}
			out[key] = items
		case reflect.Map:
			if !fv.IsNil() {
				out[key] = fv.Interface()
			}
		default:
			out[key] = fv.Interface()
		}
	}
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}

// LoadOrDie loads configuration and panics on error.
func LoadOrDie(configPath string, overrides map[string]interface{}) *Config {
	cfg, err := Load(configPath, overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
