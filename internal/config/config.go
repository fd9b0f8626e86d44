package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the document orchestrator
type Config struct {
	// Server configuration
	HTTPPort int    `env:"DOCGEN_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"DOCGEN_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// State store configuration
	Store StoreConfig

	// Redis configuration
	Redis RedisConfig

	// Badger configuration
	Badger BadgerConfig

	// LLM configuration
	LLM LLMConfig

	// Worker configuration
	Workers WorkerConfig

	// Engine configuration
	Engine EngineConfig

	// Document workflow configuration
	Documents DocumentsConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// StoreConfig selects the state store and event bus backends
type StoreConfig struct {
	Backend       string        `env:"STORE_BACKEND" envDefault:"memory"`
	EventsBackend string        `env:"EVENTS_BACKEND" envDefault:"memory"`
	RunTTL        time.Duration `env:"STORE_RUN_TTL" envDefault:"168h"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// StreamMaxLen caps each event stream
	StreamMaxLen int64 `env:"REDIS_STREAM_MAX_LEN" envDefault:"10000"`
}

// BadgerConfig holds embedded store configuration
type BadgerConfig struct {
	// Dir is the data directory; empty keeps the store in memory
	Dir string `env:"BADGER_DIR"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`

	// Rate limiting
	RequestsPerSecond float64       `env:"LLM_REQUESTS_PER_SECOND" envDefault:"2"`
	Burst             int           `env:"LLM_BURST" envDefault:"4"`
	RequestTimeout    time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	// Default model settings
	DefaultModel       string  `env:"LLM_DEFAULT_MODEL" envDefault:"claude-sonnet-4-5"`
	DefaultTemperature float64 `env:"LLM_DEFAULT_TEMPERATURE" envDefault:"0.3"`
	DefaultMaxTokens   int     `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"8"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// EngineConfig holds node policy defaults applied to every workflow
type EngineConfig struct {
	MaxInFlight int           `env:"ENGINE_MAX_IN_FLIGHT" envDefault:"4"`
	NodeTimeout time.Duration `env:"ENGINE_NODE_TIMEOUT" envDefault:"300s"`
	MaxRetries  int           `env:"ENGINE_MAX_RETRIES" envDefault:"3"`
	BackoffBase time.Duration `env:"ENGINE_BACKOFF_BASE" envDefault:"1s"`
	MaxBackoff  time.Duration `env:"ENGINE_MAX_BACKOFF" envDefault:"60s"`

	// PolicyFile is an optional YAML file with per workflow overrides
	PolicyFile string `env:"WORKFLOW_POLICY_FILE"`
}

// DocumentsConfig holds document workflow configuration
type DocumentsConfig struct {
	SummaryLimit int `env:"DOCUMENT_SUMMARY_LIMIT" envDefault:"30"`
	Concurrency  int `env:"DOCUMENT_CONCURRENCY" envDefault:"4"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	RunTimeout      time.Duration `env:"TIMEOUT_RUN" envDefault:"3600s"` // 1 hour
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment
func LoadFrom(environment map[string]string) (*Config, error) {
	return load(env.Options{Environment: environment})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate store config
	switch c.Store.Backend {
	case "memory", "badger":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("unsupported store backend: %s (must be memory, redis or badger)", c.Store.Backend)
	}
	switch c.Store.EventsBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("unsupported events backend: %s (must be memory or redis)", c.Store.EventsBackend)
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM API key is required")
		}
	case "mock":
	default:
		return fmt.Errorf("unsupported LLM provider: %s (must be anthropic or mock)", c.LLM.Provider)
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("LLM requests per second must not be negative")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}

	// Validate engine config
	if c.Engine.MaxInFlight < 1 {
		return fmt.Errorf("engine max in flight must be at least 1")
	}
	if c.Engine.MaxRetries < 0 || c.Engine.NodeTimeout < 0 || c.Engine.BackoffBase < 0 || c.Engine.MaxBackoff < 0 {
		return fmt.Errorf("engine retry policy must not be negative")
	}
	if c.Documents.Concurrency < 1 {
		return fmt.Errorf("document concurrency must be at least 1")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
