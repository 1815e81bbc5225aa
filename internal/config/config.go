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
	Screens       ScreensConfig       `yaml:"screens"`
	Backend       BackendConfig       `yaml:"backend"`
	Media         MediaConfig         `yaml:"media"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Permissions   PermissionsConfig   `yaml:"permissions"`
	ListQuery     ListQueryConfig     `yaml:"list_query"`
	CommonData    CommonDataConfig    `yaml:"common_data"`
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

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes how inbound JWTs are verified and which claims
// map to identity fields.
type IdentityConfig struct {
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`
	AdminRole    string        `yaml:"admin_role"`
}

// ScreensConfig describes where to find screen definition YAML files.
type ScreensConfig struct {
	Directories []string `yaml:"directories"`
}

// BackendConfig describes the upstream REST API every list and mutation
// request is proxied to.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Auth    BackendAuth   `yaml:"auth"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// BackendAuth describes the bearer token attached to backend requests and
// how it is refreshed after a 401.
type BackendAuth struct {
	TokenEnv        string `yaml:"token_env"`
	RefreshTokenEnv string `yaml:"refresh_token_env"`
	RefreshURL      string `yaml:"refresh_url"`
}

// RetryConfig describes retry settings for idempotent backend calls.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// BreakerConfig describes circuit breaker settings for the backend.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MediaConfig points at the media service used for attachments.
type MediaConfig struct {
	URL       string `yaml:"url"`
	SecretEnv string `yaml:"secret_env"`
}

// RealtimeConfig describes the redis pub/sub connection carrying
// common-data change events. An empty Addr disables the listener.
type RealtimeConfig struct {
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	Channel string `yaml:"channel"`
}

// PermissionsConfig describes grant resolution.
type PermissionsConfig struct {
	Source           string        `yaml:"source"` // "static", "backend", or "postgres"
	StaticGrantsFile string        `yaml:"static_grants_file"`
	DSNEnv           string        `yaml:"dsn_env"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

// ListQueryConfig describes query-cache behavior.
type ListQueryConfig struct {
	FreshTTL   time.Duration `yaml:"fresh_ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// CommonDataConfig describes common-data fetch behavior.
type CommonDataConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
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
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
			AdminRole:    "admin",
		},
		Screens: ScreensConfig{
			Directories: []string{"/screens"},
		},
		Backend: BackendConfig{
			Timeout: 10 * time.Second,
			Auth: BackendAuth{
				TokenEnv:        "STAFFDECK_BACKEND_TOKEN",
				RefreshTokenEnv: "STAFFDECK_BACKEND_REFRESH_TOKEN",
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				BackoffInitial:    100 * time.Millisecond,
				BackoffMultiplier: 2.0,
				BackoffMax:        2 * time.Second,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
		},
		Media: MediaConfig{
			SecretEnv: "STAFFDECK_MEDIA_SECRET",
		},
		Realtime: RealtimeConfig{
			Channel: "common-data",
		},
		Permissions: PermissionsConfig{
			Source:   "static",
			CacheTTL: 5 * time.Minute,
		},
		ListQuery: ListQueryConfig{
			FreshTTL:   30 * time.Second,
			MaxEntries: 1000,
		},
		CommonData: CommonDataConfig{
			FetchTimeout: 5 * time.Second,
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
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.JWKSURL == "" {
		errs = append(errs, "identity.jwks_url is required")
	}
	if c.Realtime.Addr != "" && c.Realtime.Channel == "" {
		errs = append(errs, "realtime.channel is required when realtime.addr is set")
	}
	if c.Permissions.Source == "static" && c.Permissions.StaticGrantsFile == "" {
		errs = append(errs, "permissions.static_grants_file is required for the static source")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads STAFFDECK_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STAFFDECK_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("STAFFDECK_BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("STAFFDECK_MEDIA_URL"); v != "" {
		cfg.Media.URL = v
	}
	if v := os.Getenv("STAFFDECK_REALTIME_ADDR"); v != "" {
		cfg.Realtime.Addr = v
	}
	if v := os.Getenv("STAFFDECK_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("STAFFDECK_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("STAFFDECK_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
