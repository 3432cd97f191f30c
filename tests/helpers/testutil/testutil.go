// Package testutil provides sandbox fakes for runtime tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
)

// MockConnector is a mock implementation of sandbox.Connector.
type MockConnector struct {
	mock.Mock
}

// Connect mocks the Connect method.
func (m *MockConnector) Connect(ctx context.Context) (sandbox.Connection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(sandbox.Connection), args.Error(1)
}

// NewMockConnector creates a connector that hands out conn on every call.
func NewMockConnector(t *testing.T, conn sandbox.Connection) *MockConnector {
	t.Helper()
	m := new(MockConnector)
	m.On("Connect", mock.Anything).Return(conn, nil)
	return m
}

// EvalFunc answers a script submitted to a FakeIsolate.
type EvalFunc func(ctx context.Context, script string) (string, error)

// FakeConnection is an in-memory sandbox.Connection with failure injection.
type FakeConnection struct {
	mu       sync.Mutex
	features map[sandbox.Feature]bool
	isolates []*FakeIsolate
	dead     bool

	// Eval answers every script; it defaults to returning "null".
	Eval EvalFunc
	// CreateErr is returned by CreateIsolate when set.
	CreateErr error
	// ProvideErr and RefuseData control ProvideNamedData.
	ProvideErr error
	RefuseData bool

	Creates atomic.Int64
	Probes  atomic.Int64
	Closes  atomic.Int64
	LastMax atomic.Int64
}

// NewFakeConnection creates a connection supporting the given features.
func NewFakeConnection(features ...sandbox.Feature) *FakeConnection {
	c := &FakeConnection{features: make(map[sandbox.Feature]bool)}
	for _, f := range features {
		c.features[f] = true
	}
	return c
}

// AllFeatures lists every feature a FakeConnection can report.
func AllFeatures() []sandbox.Feature {
	return []sandbox.Feature{
		sandbox.FeatureWasmCompilation,
		sandbox.FeatureProvideConsumeArrayBuffer,
		sandbox.FeaturePromiseReturn,
		sandbox.FeatureIsolateMaxHeapSize,
	}
}

// Kill simulates the sandbox process dying.
func (c *FakeConnection) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = true
}

func (c *FakeConnection) IsFeatureSupported(ctx context.Context, feature sandbox.Feature) (bool, error) {
	c.Probes.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return false, sandbox.ErrConnectionClosed
	}
	return c.features[feature], nil
}

func (c *FakeConnection) CreateIsolate(ctx context.Context, maxHeapBytes int64) (sandbox.Isolate, error) {
	c.Creates.Add(1)
	c.LastMax.Store(maxHeapBytes)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return nil, sandbox.ErrConnectionClosed
	}
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}

	iso := &FakeIsolate{
		id:   fmt.Sprintf("fake-%d", len(c.isolates)+1),
		conn: c,
		data: make(map[string][]byte),
	}
	c.isolates = append(c.isolates, iso)
	return iso, nil
}

func (c *FakeConnection) Close() error {
	c.Closes.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = true
	return nil
}

// Isolates returns every isolate created so far.
func (c *FakeConnection) Isolates() []*FakeIsolate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FakeIsolate(nil), c.isolates...)
}

// FakeIsolate records what the executor did with it.
type FakeIsolate struct {
	id   string
	conn *FakeConnection

	mu      sync.Mutex
	data    map[string][]byte
	scripts []string

	Closes atomic.Int64
}

func (i *FakeIsolate) ID() string { return i.id }

func (i *FakeIsolate) ProvideNamedData(ctx context.Context, name string, data []byte) (bool, error) {
	if i.conn.ProvideErr != nil {
		return false, i.conn.ProvideErr
	}
	if i.conn.RefuseData {
		return false, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.data[name] = append([]byte(nil), data...)
	return true, nil
}

func (i *FakeIsolate) Evaluate(ctx context.Context, script string) (string, error) {
	i.mu.Lock()
	i.scripts = append(i.scripts, script)
	i.mu.Unlock()

	if i.conn.Eval != nil {
		return i.conn.Eval(ctx, script)
	}
	return "null", nil
}

func (i *FakeIsolate) Close() error {
	i.Closes.Add(1)
	return nil
}

// Scripts returns every script submitted to the isolate.
func (i *FakeIsolate) Scripts() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.scripts...)
}

// Data returns the payload provided under name.
func (i *FakeIsolate) Data(name string) ([]byte, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	d, ok := i.data[name]
	return d, ok
}
