// Package capability answers which optional features a sandbox connection
// offers. All queries are read-only probes against a live connection.
package capability

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
)

// WasmFeatures must all be present to run a binary module. Consuming the
// transferred bytes is asynchronous inside the sandbox, which forces the
// wrapper onto a promise chain.
var WasmFeatures = []sandbox.Feature{
	sandbox.FeatureWasmCompilation,
	sandbox.FeatureProvideConsumeArrayBuffer,
	sandbox.FeaturePromiseReturn,
}

// Snapshot records composite capabilities of one connection
type Snapshot struct {
	Wasm        bool `json:"wasm"`
	HeapCeiling bool `json:"heap_ceiling"`
}

// SupportsWasm reports whether conn can compile and run a binary module
func SupportsWasm(ctx context.Context, conn sandbox.Connection) (bool, error) {
	return supportsAll(ctx, conn, WasmFeatures...)
}

// SupportsHeapCeiling reports whether conn accepts a per-isolate heap ceiling
func SupportsHeapCeiling(ctx context.Context, conn sandbox.Connection) (bool, error) {
	return supportsAll(ctx, conn, sandbox.FeatureIsolateMaxHeapSize)
}

// Probe collects every composite capability of conn
func Probe(ctx context.Context, conn sandbox.Connection) (Snapshot, error) {
	wasm, err := SupportsWasm(ctx, conn)
	if err != nil {
		return Snapshot{}, err
	}
	heap, err := SupportsHeapCeiling(ctx, conn)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Wasm: wasm, HeapCeiling: heap}, nil
}

func supportsAll(ctx context.Context, conn sandbox.Connection, features ...sandbox.Feature) (bool, error) {
	if conn == nil {
		return false, sandbox.ErrNotConnected
	}

	for _, feature := range features {
		ok, err := conn.IsFeatureSupported(ctx, feature)
		if err != nil {
			return false, fmt.Errorf("probe %s: %w", feature, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
