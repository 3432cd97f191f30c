package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"16777216"`
}

// SandboxConfig holds script runtime configuration.
type SandboxConfig struct {
	Workers          int           `envconfig:"SANDBOX_WORKERS" default:"4"`
	MaxCallStackSize int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	EnableConsole    bool          `envconfig:"SANDBOX_CONSOLE" default:"true"`
	EnableWasm       bool          `envconfig:"SANDBOX_WASM" default:"true"`
	EnableHeapLimit  bool          `envconfig:"SANDBOX_HEAP_LIMIT" default:"false"`
	MinHeapBytes     int64         `envconfig:"SANDBOX_MIN_HEAP_BYTES" default:"1048576"`
	HeapPollInterval time.Duration `envconfig:"SANDBOX_HEAP_POLL" default:"10ms"`
	BreakerFailures  uint32        `envconfig:"SANDBOX_BREAKER_FAILURES" default:"5"`
	BreakerTimeout   time.Duration `envconfig:"SANDBOX_BREAKER_TIMEOUT" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`

	// GlobalRequestsPerSecond caps all clients together; zero disables it.
	GlobalRequestsPerSecond int `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Sandbox.Workers <= 0 {
		return fmt.Errorf("sandbox workers must be positive, got %d", c.Sandbox.Workers)
	}
	if c.Sandbox.MaxCallStackSize <= 0 {
		return fmt.Errorf("sandbox call stack size must be positive, got %d", c.Sandbox.MaxCallStackSize)
	}
	if c.Sandbox.MinHeapBytes < 0 {
		return fmt.Errorf("sandbox minimum heap must not be negative, got %d", c.Sandbox.MinHeapBytes)
	}
	if c.Sandbox.EnableHeapLimit && c.Sandbox.HeapPollInterval <= 0 {
		return fmt.Errorf("sandbox heap poll interval must be positive, got %s", c.Sandbox.HeapPollInterval)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive rps and burst")
	}
	if c.RateLimit.GlobalRequestsPerSecond < 0 {
		return fmt.Errorf("global rate limit must not be negative, got %d", c.RateLimit.GlobalRequestsPerSecond)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    16 << 20,
		},
		Sandbox: SandboxConfig{
			Workers:          4,
			MaxCallStackSize: 1024,
			EnableConsole:    true,
			EnableWasm:       true,
			EnableHeapLimit:  false,
			MinHeapBytes:     1 << 20,
			HeapPollInterval: 10 * time.Millisecond,
			BreakerFailures:  5,
			BreakerTimeout:   30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
