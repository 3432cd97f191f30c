package gojahost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
)

// ErrHeapExceeded interrupts a script that outgrew its heap ceiling
var ErrHeapExceeded = errors.New("heap ceiling exceeded")

// Config defines host configuration
type Config struct {
	MaxCallStackSize int           // Maximum JS call depth
	EnableConsole    bool          // Forward console output to the logger
	EnableWasm       bool          // Expose the WebAssembly object
	EnableHeapLimit  bool          // Accept bounded isolates; off by default since the ceiling is approximate
	MinHeapBytes     int64         // Smallest ceiling a bounded isolate accepts
	HeapPollInterval time.Duration // Watchdog sampling period
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxCallStackSize: 1024,
		EnableConsole:    true,
		EnableWasm:       true,
		EnableHeapLimit:  false,
		MinHeapBytes:     1 << 20,
		HeapPollInterval: 10 * time.Millisecond,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxCallStackSize <= 0 {
		return fmt.Errorf("max call stack size must be positive, got %d", c.MaxCallStackSize)
	}
	if c.MinHeapBytes < 0 {
		return fmt.Errorf("minimum heap bytes must not be negative, got %d", c.MinHeapBytes)
	}
	if c.EnableHeapLimit && c.HeapPollInterval <= 0 {
		return fmt.Errorf("heap poll interval must be positive, got %s", c.HeapPollInterval)
	}
	return nil
}

// features lists what a host built from c reports
func (c Config) features() map[sandbox.Feature]bool {
	return map[sandbox.Feature]bool{
		sandbox.FeatureWasmCompilation:           c.EnableWasm,
		sandbox.FeatureProvideConsumeArrayBuffer: true,
		sandbox.FeaturePromiseReturn:             true,
		sandbox.FeatureIsolateMaxHeapSize:        c.EnableHeapLimit,
	}
}

// Connector opens goja hosts
type Connector struct {
	config Config
	logger *zap.Logger
}

// NewConnector creates a connector; a nil logger discards output
func NewConnector(config Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{config: config, logger: logger}
}

// Connect opens a new host
func (c *Connector) Connect(ctx context.Context) (sandbox.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host config: %w", err)
	}
	return NewHost(c.config, c.logger), nil
}
