// Package config provides configuration loading using koanf.
// Precedence: environment variables over compiled defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/attitudes-vip/event-gateway/internal/domain"
)

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	// Logging configuration
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// Service configuration
	Gateway GatewayConfig `koanf:"gateway"`

	// Infrastructure configurations
	Redis    RedisConfig    `koanf:"redis"`
	DynamoDB DynamoDBConfig `koanf:"dynamodb"`
	AWS      AWSConfig      `koanf:"aws"`

	// OpenTelemetry configuration
	OTEL OTELConfig `koanf:"otel"`
}

// GatewayConfig holds the event gateway configuration. Every tunable the
// gateway core consumes is externally configurable; the zero values fall
// back to the normative defaults in internal/domain.
type GatewayConfig struct {
	HTTPPort int `koanf:"http_port"`

	// AllowedOrigins is the Origin allow-list for the WebSocket upgrade.
	// Empty means same-origin browsers and non-browser clients only.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// SigningSecret signs bearer credentials and reconnect tokens.
	// Required outside local development.
	SigningSecret string `koanf:"signing_secret"`

	// Handshake and heartbeat timing
	HandshakeTimeout  time.Duration `koanf:"handshake_timeout"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `koanf:"heartbeat_timeout"`

	// Rate limiting
	EventRateLimit  int           `koanf:"event_rate_limit"`
	EventRateWindow time.Duration `koanf:"event_rate_window"`

	// Connection ceilings
	MaxConnections      int `koanf:"max_connections"`
	MaxConnectionsPerIP int `koanf:"max_connections_per_ip"`

	// Batching pipeline
	BatchInterval time.Duration `koanf:"batch_interval"`
	BatchMaxSize  int           `koanf:"batch_max_size"`

	// Presence
	PresenceGrace time.Duration `koanf:"presence_grace"`

	// Reconnection tokens
	ReconnectTokenTTL time.Duration `koanf:"reconnect_token_ttl"`

	// Backplane pub/sub channel name
	BackplaneChannel string `koanf:"backplane_channel"`

	// Supervisor cadence
	MetricsInterval time.Duration `koanf:"metrics_interval"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// Worker pool for fire-and-forget persistence
	WorkerPoolSize   int `koanf:"worker_pool_size"`
	WorkerQueueDepth int `koanf:"worker_queue_depth"`
}

// RedisConfig holds Redis (backplane) configuration.
type RedisConfig struct {
	Addr     string        `koanf:"addr"` // Required in production
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

// DynamoDBConfig holds persistence collaborator configuration.
type DynamoDBConfig struct {
	Endpoint    string        `koanf:"endpoint"` // Empty for production (default AWS endpoint)
	Timeout     time.Duration `koanf:"timeout"`
	UsersTable  string        `koanf:"users_table"`
	EventsTable string        `koanf:"events_table"`
}

// AWSConfig holds AWS SDK configuration.
type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"` // LocalStack endpoint for development
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName string `koanf:"service_name"`
}

// defaults returns a Config with compiled default values.
// These match the normative limits in internal/domain.
func defaults() *Config {
	return &Config{
		Environment: "local",
		LogLevel:    "info",
		LogFormat:   "json",

		Gateway: GatewayConfig{
			HTTPPort:            8080,
			SigningSecret:       "local-dev-secret",
			HandshakeTimeout:    domain.HandshakeTimeout,
			HeartbeatInterval:   domain.HeartbeatInterval,
			HeartbeatTimeout:    domain.HeartbeatTimeout,
			EventRateLimit:      domain.EventRateLimit,
			EventRateWindow:     domain.EventRateWindow,
			MaxConnections:      domain.MaxConnections,
			MaxConnectionsPerIP: domain.MaxConnectionsPerIP,
			BatchInterval:       domain.BatchFlushInterval,
			BatchMaxSize:        domain.BatchMaxSize,
			PresenceGrace:       domain.PresenceGracePeriod,
			ReconnectTokenTTL:   domain.ReconnectTokenLifetime,
			BackplaneChannel:    "gateway:events",
			MetricsInterval:     domain.MetricsInterval,
			CleanupInterval:     domain.CleanupInterval,
			WorkerPoolSize:      domain.WorkerPoolSize,
			WorkerQueueDepth:    domain.WorkerQueueDepth,
		},

		Redis: RedisConfig{
			Addr:    "localhost:6379",
			DB:      0,
			Timeout: domain.RedisTimeout,
		},
		DynamoDB: DynamoDBConfig{
			Timeout:     domain.DynamoDBTimeout,
			UsersTable:  "users",
			EventsTable: "event_audit",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
	}
}

// Load loads configuration following the precedence:
// 1. Environment variables (highest)
// 2. Compiled defaults (lowest)
//
// Required keys missing in production cause a startup failure; optional
// keys missing fall back to defaults.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	// Start with compiled defaults
	cfg := defaults()

	// Load environment variables.
	// Prefix: none (we use full names like GATEWAY_HTTP_PORT).
	// The leading section name maps to a config subtree; the remainder
	// keeps its underscores so multi-word keys like GATEWAY_SIGNING_SECRET
	// reach gateway.signing_secret.
	err := k.Load(env.Provider("", ".", envToKey), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	// Unmarshal into config struct
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Validate required fields
	if err := validateRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configSections are the env var prefixes that map to config subtrees.
var configSections = []string{"gateway_", "redis_", "dynamodb_", "aws_", "otel_"}

// envToKey translates an environment variable name to a koanf key.
// GATEWAY_SIGNING_SECRET -> gateway.signing_secret; LOG_LEVEL -> log_level.
func envToKey(s string) string {
	s = strings.ToLower(s)
	for _, section := range configSections {
		if strings.HasPrefix(s, section) {
			return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(s, section)
		}
	}
	return s
}

// validateRequired checks that required configuration is present.
func validateRequired(cfg *Config) error {
	// In local environment, all fields have sensible defaults.
	if cfg.Environment == "local" {
		return nil
	}

	if cfg.Environment == "prod" {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr", domain.ErrConfigRequired)
		}
		if cfg.Gateway.SigningSecret == "" || cfg.Gateway.SigningSecret == "local-dev-secret" {
			return fmt.Errorf("%w: gateway.signing_secret", domain.ErrConfigRequired)
		}
	}

	return nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
