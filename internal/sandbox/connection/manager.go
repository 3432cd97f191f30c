// Package connection owns the single shared connection to the sandbox.
//
// The Manager connects lazily, shares one in-flight attempt between all
// callers, and resets to Absent after a failed attempt or a teardown so the
// next caller starts over. It never retries on its own.
package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/async"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
)

// State is the liveness of the managed connection
type State int

const (
	StateAbsent State = iota
	StateConnecting
	StateLive
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	default:
		return "unknown"
	}
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records connect attempts and state changes
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithBreaker guards connect attempts with a circuit breaker
func WithBreaker(breaker *resilience.Breaker) Option {
	return func(m *Manager) {
		m.breaker = breaker
	}
}

// Manager hands out the shared sandbox connection
type Manager struct {
	connector sandbox.Connector
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	breaker   *resilience.Breaker

	mu      sync.Mutex
	pending *async.Future[sandbox.Connection]

	attempts atomic.Int64
}

// NewManager creates a manager in the Absent state
func NewManager(connector sandbox.Connector, opts ...Option) *Manager {
	m := &Manager{
		connector: connector,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connection returns the shared connection future, starting a connect
// attempt if none is pending or live. Every caller that arrives while an
// attempt is in flight observes the same outcome.
func (m *Manager) Connection() *async.Future[sandbox.Connection] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		return m.pending
	}

	f, complete := async.NewFuture[sandbox.Connection]()
	m.pending = f
	m.attempts.Add(1)
	m.metrics.SetConnectionState(int(StateConnecting))

	go m.connect(f, complete)
	return f
}

func (m *Manager) connect(f *async.Future[sandbox.Connection], complete func(sandbox.Connection, error)) {
	// The attempt is shared, so no single caller's context may cancel it.
	conn, err := resilience.Execute(m.breaker, func() (sandbox.Connection, error) {
		return m.connector.Connect(context.Background())
	})
	if err == nil && conn == nil {
		err = errors.New("connector returned no connection")
	}

	if err != nil {
		m.mu.Lock()
		if m.pending == f {
			m.pending = nil
			m.metrics.SetConnectionState(int(StateAbsent))
		}
		m.mu.Unlock()

		result := "failure"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			result = "circuit_open"
		}
		m.metrics.RecordConnect(result)
		m.logger.Warn("Sandbox connection failed", zap.Error(err))
		complete(nil, sandbox.NewError(sandbox.KindSandboxUnavailable, "connect", err))
		return
	}

	m.mu.Lock()
	if m.pending == f {
		m.metrics.SetConnectionState(int(StateLive))
	}
	m.mu.Unlock()

	m.metrics.RecordConnect("success")
	m.logger.Info("Sandbox connected")
	complete(conn, nil)
}

// Teardown closes the current connection and resets to Absent. Closing
// happens asynchronously; a pending attempt is awaited and then closed.
// With no connection it completes immediately.
func (m *Manager) Teardown() *async.Future[struct{}] {
	m.mu.Lock()
	f := m.pending
	m.pending = nil
	if f != nil {
		m.metrics.SetConnectionState(int(StateAbsent))
	}
	m.mu.Unlock()

	return m.release(f)
}

// Invalidate tears down conn only if it is still the current connection,
// so a caller holding a dead handle cannot drop a newer one.
func (m *Manager) Invalidate(conn sandbox.Connection) *async.Future[struct{}] {
	m.mu.Lock()
	f := m.pending
	if f != nil {
		current, err, ok := f.Result()
		if !ok || err != nil || current != conn {
			f = nil
		}
	}
	if f != nil {
		m.pending = nil
		m.metrics.SetConnectionState(int(StateAbsent))
	}
	m.mu.Unlock()

	if f != nil {
		m.logger.Warn("Sandbox connection lost, resetting")
	}
	return m.release(f)
}

func (m *Manager) release(f *async.Future[sandbox.Connection]) *async.Future[struct{}] {
	if f == nil {
		return async.Completed(struct{}{}, nil)
	}

	done, complete := async.NewFuture[struct{}]()
	go func() {
		conn, err := f.Await(context.Background())
		if err != nil {
			// the attempt failed, nothing to close
			complete(struct{}{}, nil)
			return
		}

		err = conn.Close()
		if err != nil {
			m.logger.Warn("Failed to close sandbox connection", zap.Error(err))
		} else {
			m.logger.Info("Sandbox connection closed")
		}
		complete(struct{}{}, err)
	}()
	return done
}

// State reports the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return StateAbsent
	}
	if _, err, ok := m.pending.Result(); ok && err == nil {
		return StateLive
	}
	return StateConnecting
}

// ConnectAttempts returns how many connect attempts were started
func (m *Manager) ConnectAttempts() int64 {
	return m.attempts.Load()
}
