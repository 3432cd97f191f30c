// Package evaluator is the public entry point for running scripts in the
// sandbox. It wires the connection manager, the worker pool and the executor
// together and exposes one call per evaluation shape.
package evaluator

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/async"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/args"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/capability"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/connection"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/executor"
)

// DefaultEntryPoint is invoked when the caller names no entry function
const DefaultEntryPoint = "__rb_entry_point"

type options struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
	breaker *resilience.Breaker
	workers int
}

// Option configures an Evaluator
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records evaluations, isolates and connects
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithBreaker guards connect attempts
func WithBreaker(breaker *resilience.Breaker) Option {
	return func(o *options) {
		o.breaker = breaker
	}
}

// WithWorkers bounds concurrent evaluations
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// Evaluator runs scripts against a lazily connected sandbox
type Evaluator struct {
	conns  *connection.Manager
	pool   *async.Pool
	exec   *executor.Executor
	logger *zap.Logger
}

// New creates an evaluator. No connection is made until the first call.
func New(connector sandbox.Connector, opts ...Option) *Evaluator {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	conns := connection.NewManager(connector,
		connection.WithLogger(o.logger),
		connection.WithMetrics(o.metrics),
		connection.WithBreaker(o.breaker),
	)
	pool := async.NewPool(o.workers)

	return &Evaluator{
		conns: conns,
		pool:  pool,
		exec: executor.New(conns, pool,
			executor.WithLogger(o.logger),
			executor.WithMetrics(o.metrics),
		),
		logger: o.logger,
	}
}

// Evaluate runs script and calls DefaultEntryPoint with arguments
func (e *Evaluator) Evaluate(ctx context.Context, script string, arguments []args.Argument, settings sandbox.Settings) *async.Future[string] {
	return e.EvaluateEntry(ctx, script, arguments, DefaultEntryPoint, settings)
}

// EvaluateEntry runs script and calls entry with arguments. The future
// yields the JSON serialisation of the return value.
func (e *Evaluator) EvaluateEntry(ctx context.Context, script string, arguments []args.Argument, entry string, settings sandbox.Settings) *async.Future[string] {
	return e.exec.Evaluate(ctx, executor.Request{
		Script:     script,
		Args:       arguments,
		EntryPoint: entry,
		Settings:   settings,
	})
}

// EvaluateModule compiles module inside the sandbox and calls entry with
// arguments followed by the compiled module
func (e *Evaluator) EvaluateModule(ctx context.Context, script string, module []byte, arguments []args.Argument, entry string, settings sandbox.Settings) *async.Future[string] {
	if len(module) == 0 {
		return async.Completed("", sandbox.Errorf(sandbox.KindInvalidRequest, "validate", "module is empty"))
	}
	return e.exec.Evaluate(ctx, executor.Request{
		Script:     script,
		Args:       arguments,
		EntryPoint: entry,
		Module:     module,
		Settings:   settings,
	})
}

// IsWasmSupported reports whether binary modules can run, connecting first
// if needed
func (e *Evaluator) IsWasmSupported(ctx context.Context) *async.Future[bool] {
	return e.exec.WasmSupported(ctx)
}

// Capabilities reports every optional capability of the sandbox
func (e *Evaluator) Capabilities(ctx context.Context) *async.Future[capability.Snapshot] {
	return e.exec.Capabilities(ctx)
}

// Shutdown closes the sandbox connection. Later calls reconnect.
func (e *Evaluator) Shutdown() *async.Future[struct{}] {
	e.logger.Info("Shutting down sandbox connection")
	return e.conns.Teardown()
}

// State reports the sandbox connection state
func (e *Evaluator) State() connection.State {
	return e.conns.State()
}

// Close shuts the connection down and waits for running evaluations
func (e *Evaluator) Close(ctx context.Context) error {
	if _, err := e.Shutdown().Await(ctx); err != nil {
		return err
	}
	return e.pool.Close()
}
