package gojahost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/shared/id"
)

// Isolate wraps a goja VM with security controls
type Isolate struct {
	id      id.IsolateID
	host    *Host
	maxHeap int64
	logger  *zap.Logger

	// VM access is serialised by mu
	mu     sync.Mutex
	vm     *goja.Runtime
	wasm   *wasmBridge
	runCtx context.Context
	closed atomic.Bool

	dataMu sync.Mutex
	data   map[string][]byte
}

func newIsolate(h *Host, maxHeap int64) (*Isolate, error) {
	isoID := id.NewIsolateID()

	i := &Isolate{
		id:      isoID,
		host:    h,
		maxHeap: maxHeap,
		logger:  h.logger.With(zap.String("isolate_id", isoID.String())),
		vm:      goja.New(),
		runCtx:  context.Background(),
		data:    make(map[string][]byte),
	}
	i.vm.SetMaxCallStackSize(h.config.MaxCallStackSize)

	if err := i.setupGlobals(); err != nil {
		return nil, fmt.Errorf("setup globals: %w", err)
	}

	i.logger.Debug("Isolate created", zap.Int64("max_heap_bytes", maxHeap))
	return i, nil
}

// ID returns the isolate id
func (i *Isolate) ID() string {
	return i.id.String()
}

// ProvideNamedData stores a copy of data for a later
// sandbox.consumeNamedDataAsArrayBuffer(name). Payloads larger than the heap
// ceiling are refused.
func (i *Isolate) ProvideNamedData(ctx context.Context, name string, data []byte) (bool, error) {
	if i.closed.Load() {
		return false, sandbox.ErrIsolateClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if i.maxHeap > 0 && int64(len(data)) > i.maxHeap {
		i.logger.Debug("Named data refused",
			zap.String("name", name),
			zap.Int("size", len(data)),
		)
		return false, nil
	}

	i.dataMu.Lock()
	defer i.dataMu.Unlock()

	if i.data == nil {
		return false, sandbox.ErrIsolateClosed
	}
	i.data[name] = append([]byte(nil), data...)
	return true, nil
}

// consume removes and returns the data stored under name
func (i *Isolate) consume(name string) ([]byte, bool) {
	i.dataMu.Lock()
	defer i.dataMu.Unlock()

	data, ok := i.data[name]
	if ok {
		delete(i.data, name)
	}
	return data, ok
}

// Evaluate runs script and returns its completion value as a string. A
// promise completion value is unwrapped once the job queue drains. An
// undefined result yields "".
func (i *Isolate) Evaluate(ctx context.Context, script string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed.Load() {
		return "", sandbox.ErrIsolateClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	i.runCtx = ctx
	defer func() { i.runCtx = context.Background() }()

	stop := i.watch(ctx)
	val, err := i.vm.RunString(script)
	stop()
	i.vm.ClearInterrupt()

	if err != nil {
		return "", scriptError(err)
	}
	return settle(val)
}

// context returns the context of the running evaluation
func (i *Isolate) context() context.Context {
	return i.runCtx
}

// Close releases the VM and any compiled modules. Safe to call repeatedly.
func (i *Isolate) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	i.vm.Interrupt(sandbox.ErrIsolateClosed)

	i.mu.Lock()
	defer i.mu.Unlock()

	var err error
	if i.wasm != nil {
		err = i.wasm.close()
	}

	i.dataMu.Lock()
	i.data = nil
	i.dataMu.Unlock()

	i.host.forget(i)
	i.logger.Debug("Isolate closed")
	return err
}

func scriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("script interrupted: %w", cause)
		}
		return fmt.Errorf("script interrupted: %v", interrupted.Value())
	}
	return err
}

func settle(val goja.Value) (string, error) {
	if val == nil {
		return "", nil
	}

	if p, ok := val.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			val = p.Result()
		case goja.PromiseStateRejected:
			return "", fmt.Errorf("promise rejected: %s", describe(p.Result()))
		default:
			return "", errors.New("promise did not settle")
		}
	}

	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return "", nil
	}
	return val.String(), nil
}

func describe(val goja.Value) string {
	if val == nil {
		return "undefined"
	}
	return val.String()
}
