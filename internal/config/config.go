// Package config loads process configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/synopmap/synopmap/internal/ogimet"
)

// Snapshot store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Bulletin sources.
const (
	SourceOgimet = "ogimet"
	SourceFile   = "file"
)

// DevJWTSigningKey is used when JWT_SIGNING_KEY is unset outside production.
const DevJWTSigningKey = "local-dev-signing-key-change-in-production"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the configuration shared by the API server and the worker.
type Config struct {
	Env  string
	Port string

	Telemetry TelemetryConfig
	Source    SourceConfig
	Store     string
	Cache     CacheConfig
	MQTT      MQTTConfig
	PubSub    PubSubConfig
	Worker    WorkerConfig

	JWTSigningKey string

	// CORSOrigins lists origins allowed to embed the widget; "*" allows any.
	CORSOrigins []string

	// RateLimit is requests per minute per client IP on /api.
	RateLimit int
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

// SourceConfig selects where bulletins come from.
type SourceConfig struct {
	Kind     string
	BaseURL  string
	Country  string
	FilePath string
}

// CacheConfig tunes the snapshot cache.
type CacheConfig struct {
	TTL          time.Duration
	StaleIfError time.Duration
	Retain       int
}

// MQTTConfig configures snapshot notifications. An empty BrokerURL disables
// them.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Enabled reports whether a broker is configured.
func (c MQTTConfig) Enabled() bool {
	return c.BrokerURL != ""
}

// PubSubConfig configures the worker's job subscription. An empty ProjectID
// disables it.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// Enabled reports whether a subscription is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Subscription != ""
}

// WorkerConfig configures the scheduled refresh.
type WorkerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Env:  getEnvOrDefault("APP_ENV", "development"),
		Port: getEnvOrDefault("APP_PORT", "8080"),
		Telemetry: TelemetryConfig{
			Enabled:      os.Getenv("OTEL_ENABLED") == "true",
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
		Source: SourceConfig{
			Kind:     getEnvOrDefault("SYNOP_SOURCE", SourceOgimet),
			BaseURL:  getEnvOrDefault("OGIMET_BASE_URL", ogimet.DefaultBaseURL),
			Country:  getEnvOrDefault("OGIMET_COUNTRY", ogimet.DefaultCountry),
			FilePath: getEnvOrDefault("SYNOP_FILE", "ogimet_data.txt"),
		},
		Store: getEnvOrDefault("SNAPSHOT_STORE", StoreMemory),
		MQTT: MQTTConfig{
			BrokerURL:   os.Getenv("MQTT_BROKER_URL"),
			ClientID:    getEnvOrDefault("MQTT_CLIENT_ID", "synopmap"),
			Username:    os.Getenv("MQTT_USERNAME"),
			Password:    os.Getenv("MQTT_PASSWORD"),
			TopicPrefix: getEnvOrDefault("MQTT_TOPIC_PREFIX", "synopmap"),
		},
		PubSub: PubSubConfig{
			ProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
			Subscription: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "synopmap-jobs"),
		},
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		CORSOrigins:   splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.Cache.TTL, err = durationEnv("CACHE_TTL", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Cache.StaleIfError, err = durationEnv("CACHE_STALE_IF_ERROR", 6*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Cache.Retain, err = intEnv("SNAPSHOT_RETAIN", 56); err != nil {
		return Config{}, err
	}
	if cfg.Worker.Interval, err = durationEnv("WORKER_REFRESH_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Worker.Timeout, err = durationEnv("WORKER_REFRESH_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit, err = intEnv("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// SigningKey returns the JWT signing key, falling back to DevJWTSigningKey
// outside production.
func (c Config) SigningKey() (key string, isDefault bool) {
	if c.JWTSigningKey != "" {
		return c.JWTSigningKey, false
	}
	return DevJWTSigningKey, true
}

// Validate checks enumerations and cross-field rules.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("%w: SNAPSHOT_STORE must be memory, sqlite or postgres, got %q", ErrInvalidConfig, c.Store)
	}

	switch c.Source.Kind {
	case SourceOgimet:
		if c.Source.Country == "" {
			return fmt.Errorf("%w: OGIMET_COUNTRY is required", ErrInvalidConfig)
		}
	case SourceFile:
		if c.Source.FilePath == "" {
			return fmt.Errorf("%w: SYNOP_FILE is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: SYNOP_SOURCE must be ogimet or file, got %q", ErrInvalidConfig, c.Source.Kind)
	}

	if c.IsProduction() && c.JWTSigningKey == "" {
		return fmt.Errorf("%w: JWT_SIGNING_KEY is required in production", ErrInvalidConfig)
	}
	if c.Cache.TTL <= 0 || c.Worker.Interval <= 0 {
		return fmt.Errorf("%w: durations must be positive", ErrInvalidConfig)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return d, nil
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
