// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Templates     TemplatesConfig     `yaml:"templates"`
	Store         StoreConfig         `yaml:"store"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings for the
// dashboard API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT settings for the dashboard read API. When
// disabled, /api routes are open; webhook routes are always guarded by the
// shared secret instead.
type IdentityConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`
}

// TemplatesConfig describes where to find workflow template YAML files.
type TemplatesConfig struct {
	Directories []string `yaml:"directories"`
}

// StoreConfig describes tracking-store persistence settings. An empty DSN
// under the postgres driver disables persistence entirely and the recorder
// runs local-only.
type StoreConfig struct {
	Driver          string        `yaml:"driver"` // postgres | memory
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MinIdleConns    int           `yaml:"min_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RecorderConfig describes the trace recorder and its detail write buffer.
type RecorderConfig struct {
	System        string        `yaml:"system"`
	Environment   string        `yaml:"environment"`
	FlushSize     int           `yaml:"flush_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// IngestConfig describes the inbound webhook boundary.
type IngestConfig struct {
	SecretEnv string       `yaml:"secret_env"`
	SkipPaths []string     `yaml:"skip_paths"`
	Dedupe    DedupeConfig `yaml:"dedupe"`
}

// DedupeConfig describes webhook delivery deduplication.
type DedupeConfig struct {
	Enabled bool          `yaml:"enabled"`
	Driver  string        `yaml:"driver"` // memory | redis
	AddrEnv string        `yaml:"addr_env"`
	DB      int           `yaml:"db"`
	TTL     time.Duration `yaml:"ttl"`
}

// ReconcileConfig describes the dangling-trace reconciler that fails traces
// stuck in started status after a crash or abandoned request.
type ReconcileConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
	DanglingAfter time.Duration `yaml:"dangling_after"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
		},
		Templates: TemplatesConfig{
			Directories: []string{"/templates"},
		},
		Store: StoreConfig{
			Driver:          "postgres",
			DSNEnv:          "FLIGHTREC_STORE_DSN",
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Recorder: RecorderConfig{
			System:        "default",
			Environment:   "production",
			FlushSize:     20,
			FlushInterval: 5 * time.Second,
		},
		Ingest: IngestConfig{
			SecretEnv: "FLIGHTREC_WEBHOOK_SECRET",
			SkipPaths: []string{"/health", "/ready", "/metrics"},
			Dedupe: DedupeConfig{
				Driver: "memory",
				TTL:    10 * time.Minute,
			},
		},
		Reconcile: ReconcileConfig{
			Enabled:       true,
			CheckInterval: 60 * time.Second,
			DanglingAfter: 30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of postgres, memory", c.Store.Driver))
	}
	switch c.Ingest.Dedupe.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("ingest.dedupe.driver %q is not one of memory, redis", c.Ingest.Dedupe.Driver))
	}
	if c.Identity.Enabled {
		if c.Identity.Issuer == "" {
			errs = append(errs, "identity.issuer is required when identity is enabled")
		}
		if c.Identity.JWKSURL == "" {
			errs = append(errs, "identity.jwks_url is required when identity is enabled")
		}
		if c.Identity.Audience == "" {
			errs = append(errs, "identity.audience is required when identity is enabled")
		}
	}
	if c.Recorder.FlushSize < 1 {
		errs = append(errs, "recorder.flush_size must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// StoreDSN resolves the tracking-store connection string from the configured
// environment variable. Empty means persistence is off.
func (c *Config) StoreDSN() string {
	if c.Store.DSNEnv == "" {
		return ""
	}
	return os.Getenv(c.Store.DSNEnv)
}

// WebhookSecret resolves the inbound webhook shared secret.
func (c *Config) WebhookSecret() string {
	if c.Ingest.SecretEnv == "" {
		return ""
	}
	return os.Getenv(c.Ingest.SecretEnv)
}

// DedupeAddr resolves the Redis address for the dedupe store.
func (c *Config) DedupeAddr() string {
	if c.Ingest.Dedupe.AddrEnv == "" {
		return ""
	}
	return os.Getenv(c.Ingest.Dedupe.AddrEnv)
}

// applyEnvOverrides reads FLIGHTREC_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLIGHTREC_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FLIGHTREC_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("FLIGHTREC_RECORDER_SYSTEM"); v != "" {
		cfg.Recorder.System = v
	}
	if v := os.Getenv("FLIGHTREC_RECORDER_ENVIRONMENT"); v != "" {
		cfg.Recorder.Environment = v
	}
	if v := os.Getenv("FLIGHTREC_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("FLIGHTREC_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("FLIGHTREC_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("FLIGHTREC_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
