package sandbox

import (
	"context"
)

// Feature names an optional sandbox capability
type Feature string

const (
	// FeatureWasmCompilation allows WebAssembly.compile inside an isolate
	FeatureWasmCompilation Feature = "WASM_COMPILATION"
	// FeatureProvideConsumeArrayBuffer allows named binary data transfer
	FeatureProvideConsumeArrayBuffer Feature = "PROVIDE_CONSUME_ARRAY_BUFFER"
	// FeaturePromiseReturn allows a script to resolve with a promise
	FeaturePromiseReturn Feature = "PROMISE_RETURN"
	// FeatureIsolateMaxHeapSize allows a per-isolate heap ceiling
	FeatureIsolateMaxHeapSize Feature = "ISOLATE_MAX_HEAP_SIZE"
)

// ConsumeNamedDataFunc is the script-side function that returns a promise of
// the ArrayBuffer handed over with Isolate.ProvideNamedData.
const ConsumeNamedDataFunc = "sandbox.consumeNamedDataAsArrayBuffer"

// Settings holds the resource limits for a single isolate
type Settings struct {
	MaxHeapBytes       int64 // Heap ceiling in bytes, 0 means unbounded
	EnforceHeapCeiling bool  // Require the sandbox to honour the ceiling
}

// DefaultSettings returns settings for an unbounded isolate
func DefaultSettings() Settings {
	return Settings{}
}

// Bounded reports whether a ceiling should be requested from the sandbox
func (s Settings) Bounded() bool {
	return s.EnforceHeapCeiling && s.MaxHeapBytes > 0
}

// Connector establishes connections to a sandbox
type Connector interface {
	Connect(ctx context.Context) (Connection, error)
}

// ConnectorFunc adapts a function to the Connector interface
type ConnectorFunc func(ctx context.Context) (Connection, error)

// Connect calls f(ctx)
func (f ConnectorFunc) Connect(ctx context.Context) (Connection, error) {
	return f(ctx)
}

// Connection is a live handle to a sandbox. It is shared by every isolate
// created from it and must be safe for concurrent use.
type Connection interface {
	// IsFeatureSupported probes an optional capability without side effects.
	// A dead connection returns ErrConnectionClosed.
	IsFeatureSupported(ctx context.Context, feature Feature) (bool, error)

	// CreateIsolate creates an isolate. maxHeapBytes of 0 requests an
	// unbounded isolate. A dead connection returns ErrConnectionClosed;
	// a rejected ceiling returns ErrHeapCeilingRejected.
	CreateIsolate(ctx context.Context, maxHeapBytes int64) (Isolate, error)

	// Close releases the connection and every isolate still bound to it
	Close() error
}

// Isolate is a disposable execution context owned by one evaluation
type Isolate interface {
	ID() string

	// ProvideNamedData hands a binary payload to the isolate under name.
	// It reports false when the isolate refused the payload.
	ProvideNamedData(ctx context.Context, name string, data []byte) (bool, error)

	// Evaluate runs script and returns its string result
	Evaluate(ctx context.Context, script string) (string, error)

	// Close releases the isolate. Calling it more than once is allowed.
	Close() error
}
