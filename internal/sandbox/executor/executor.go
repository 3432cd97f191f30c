// Package executor runs one evaluation request inside a fresh isolate.
//
// For each request the Executor obtains the shared connection, checks the
// capabilities the request needs, creates an isolate, optionally transfers a
// binary module, runs the caller script followed by a generated wrapper, and
// closes the isolate on every exit path.
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/async"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/args"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/capability"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/connection"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/shared/id"
)

// Request is one evaluation
type Request struct {
	Script     string
	Args       []args.Argument
	EntryPoint string
	Module     []byte // optional binary module
	Settings   sandbox.Settings
}

// Validate checks the request shape
func (r Request) Validate() error {
	if r.EntryPoint == "" {
		return sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "entry point is empty")
	}
	if !args.ValidName(r.EntryPoint) {
		return sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "entry point %q is not an identifier", r.EntryPoint)
	}
	if r.Settings.MaxHeapBytes < 0 {
		return sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "negative heap ceiling %d", r.Settings.MaxHeapBytes)
	}

	seen := make(map[string]bool, len(r.Args))
	for i, a := range r.Args {
		if a == nil {
			return sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "argument %d is nil", i)
		}
		name := args.NameOf(a)
		switch {
		case !args.ValidName(name):
			return sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "argument name %q is not an identifier", name)
		case reservedNames[name]:
			return sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "argument name %q is reserved", name)
		case name == r.EntryPoint:
			return sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "argument name %q shadows the entry point", name)
		case wrapperGlobals[name], len(r.Module) > 0 && moduleGlobals[name]:
			return sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "argument name %q shadows a global the wrapper uses", name)
		case seen[name]:
			return sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "duplicate argument name %q", name)
		}
		seen[name] = true
	}
	return nil
}

// Executor evaluates requests, one isolate each
type Executor struct {
	conns   *connection.Manager
	pool    *async.Pool
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records evaluations and isolate lifecycles
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(e *Executor) {
		e.metrics = metrics
	}
}

// New creates an executor running evaluations on pool
func New(conns *connection.Manager, pool *async.Pool, opts ...Option) *Executor {
	e := &Executor{
		conns:  conns,
		pool:   pool,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate schedules req on the worker pool. Cancelling ctx interrupts the
// evaluation; the isolate is still closed before the future completes.
func (e *Executor) Evaluate(ctx context.Context, req Request) *async.Future[string] {
	f, complete := async.NewFuture[string]()

	err := e.pool.Submit(func() {
		complete(e.run(ctx, req))
	})
	if err != nil {
		complete("", sandbox.NewError(sandbox.KindSandboxUnavailable, "submit", err))
	}
	return f
}

func (e *Executor) run(ctx context.Context, req Request) (result string, err error) {
	reqID := id.NewRequestID()
	logger := e.logger.With(zap.String("request_id", reqID.String()))
	timer := monitoring.NewTimer(e.metrics, len(req.Module) > 0)

	defer func() {
		outcome := "success"
		if err != nil {
			outcome = sandbox.KindOf(err).String()
		}
		elapsed := timer.Stop(outcome)
		if err != nil {
			logger.Debug("Evaluation failed", zap.Duration("duration", elapsed), zap.Error(err))
		} else {
			logger.Debug("Evaluation finished", zap.Duration("duration", elapsed))
		}
	}()

	if err := req.Validate(); err != nil {
		return "", err
	}

	conn, err := e.conns.Connection().Await(ctx)
	if err != nil {
		// either SandboxUnavailable from the manager or ctx.Err()
		return "", err
	}

	if len(req.Module) > 0 {
		ok, err := capability.SupportsWasm(ctx, conn)
		if err != nil {
			return "", e.probeFailure(conn, err)
		}
		if !ok {
			return "", sandbox.Errorf(sandbox.KindUnsupportedCapability, "check capabilities", "binary module execution is not supported")
		}
	}

	iso, err := e.createIsolate(ctx, conn, req.Settings)
	if err != nil {
		return "", err
	}
	logger = logger.With(zap.String("isolate_id", iso.ID()))
	e.metrics.IsolateOpened()
	logger.Debug("Isolate created")

	// Close takes no context: cleanup is never cancelled.
	defer func() {
		cerr := iso.Close()
		e.metrics.IsolateClosed(cerr)
		if cerr != nil {
			logger.Warn("Failed to close isolate", zap.Error(cerr))
			return
		}
		logger.Debug("Isolate closed")
	}()

	withModule := len(req.Module) > 0
	if withModule {
		ok, err := iso.ProvideNamedData(ctx, ModuleDataName, req.Module)
		if err != nil {
			return "", sandbox.NewError(sandbox.KindModuleTransferFailed, "provide module", err)
		}
		if !ok {
			return "", sandbox.Errorf(sandbox.KindModuleTransferFailed, "provide module", "isolate refused %d bytes", len(req.Module))
		}
	}

	script := BuildScript(req.Script, BuildWrapper(req.EntryPoint, req.Args, withModule))
	result, err = iso.Evaluate(ctx, script)
	if err != nil {
		return "", sandbox.NewError(sandbox.KindScriptExecutionFailed, "evaluate", err)
	}
	return result, nil
}

// Capabilities probes the shared connection, connecting first if needed
func (e *Executor) Capabilities(ctx context.Context) *async.Future[capability.Snapshot] {
	return withSnapshot(ctx, e, func(snap capability.Snapshot) capability.Snapshot { return snap })
}

// WasmSupported reports whether binary modules can run on the shared connection
func (e *Executor) WasmSupported(ctx context.Context) *async.Future[bool] {
	return withSnapshot(ctx, e, func(snap capability.Snapshot) bool { return snap.Wasm })
}

// withSnapshot reads the capabilities on the worker pool and maps the result
func withSnapshot[T any](ctx context.Context, e *Executor, pick func(capability.Snapshot) T) *async.Future[T] {
	f, complete := async.NewFuture[T]()

	err := e.pool.Submit(func() {
		var zero T
		conn, err := e.conns.Connection().Await(ctx)
		if err != nil {
			complete(zero, err)
			return
		}
		snap, err := capability.Probe(ctx, conn)
		if err != nil {
			complete(zero, e.probeFailure(conn, err))
			return
		}
		complete(pick(snap), nil)
	})
	if err != nil {
		var zero T
		complete(zero, sandbox.NewError(sandbox.KindSandboxUnavailable, "submit", err))
	}
	return f
}

func (e *Executor) createIsolate(ctx context.Context, conn sandbox.Connection, settings sandbox.Settings) (sandbox.Isolate, error) {
	if settings.EnforceHeapCeiling {
		ok, err := capability.SupportsHeapCeiling(ctx, conn)
		if err != nil {
			return nil, e.probeFailure(conn, err)
		}
		if !ok {
			return nil, sandbox.Errorf(sandbox.KindUnsupportedCapability, "create isolate", "heap ceiling enforcement required but unsupported")
		}
	}

	var maxHeap int64
	if settings.Bounded() {
		maxHeap = settings.MaxHeapBytes
	}

	iso, err := conn.CreateIsolate(ctx, maxHeap)
	switch {
	case err == nil && iso == nil:
		return nil, sandbox.Errorf(sandbox.KindIsolateCreationFailed, "create isolate", "sandbox returned no isolate")
	case err == nil:
		return iso, nil
	case errors.Is(err, sandbox.ErrConnectionClosed):
		e.conns.Invalidate(conn)
		return nil, sandbox.NewError(sandbox.KindSandboxConnectionLost, "create isolate", err)
	default:
		return nil, sandbox.NewError(sandbox.KindIsolateCreationFailed, "create isolate", err)
	}
}

// probeFailure classifies an error from a capability probe
func (e *Executor) probeFailure(conn sandbox.Connection, err error) error {
	if errors.Is(err, sandbox.ErrConnectionClosed) {
		e.conns.Invalidate(conn)
		return sandbox.NewError(sandbox.KindSandboxConnectionLost, "check capabilities", err)
	}
	return sandbox.NewError(sandbox.KindSandboxUnavailable, "check capabilities", fmt.Errorf("probe failed: %w", err))
}
