package gojahost

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/shared/id"
)

// Host is a live goja sandbox
type Host struct {
	id       id.ConnectionID
	config   Config
	features map[sandbox.Feature]bool
	logger   *zap.Logger

	mu       sync.Mutex
	closed   bool
	isolates map[string]*Isolate
}

// NewHost creates an open host
func NewHost(config Config, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	connID := id.NewConnectionID()
	return &Host{
		id:       connID,
		config:   config,
		features: config.features(),
		logger:   logger.With(zap.String("connection_id", connID.String())),
		isolates: make(map[string]*Isolate),
	}
}

// ID returns the connection id
func (h *Host) ID() string {
	return h.id.String()
}

// IsFeatureSupported reports whether the host offers feature
func (h *Host) IsFeatureSupported(ctx context.Context, feature sandbox.Feature) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false, sandbox.ErrConnectionClosed
	}
	return h.features[feature], nil
}

// CreateIsolate creates a fresh VM. maxHeapBytes of zero means unbounded.
func (h *Host) CreateIsolate(ctx context.Context, maxHeapBytes int64) (sandbox.Isolate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case maxHeapBytes < 0:
		return nil, fmt.Errorf("%w: negative ceiling %d", sandbox.ErrHeapCeilingRejected, maxHeapBytes)
	case maxHeapBytes > 0 && !h.config.EnableHeapLimit:
		return nil, fmt.Errorf("%w: heap ceilings are disabled", sandbox.ErrHeapCeilingRejected)
	case maxHeapBytes > 0 && maxHeapBytes < h.config.MinHeapBytes:
		return nil, fmt.Errorf("%w: %d bytes is below the minimum of %d",
			sandbox.ErrHeapCeilingRejected, maxHeapBytes, h.config.MinHeapBytes)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, sandbox.ErrConnectionClosed
	}

	iso, err := newIsolate(h, maxHeapBytes)
	if err != nil {
		return nil, err
	}
	h.isolates[iso.ID()] = iso
	return iso, nil
}

// Active returns the number of isolates not yet closed
func (h *Host) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.isolates)
}

func (h *Host) forget(iso *Isolate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.isolates, iso.ID())
}

// Close refuses further isolates. Open isolates keep running until closed.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.logger.Info("Sandbox host closed", zap.Int("open_isolates", len(h.isolates)))
	return nil
}
