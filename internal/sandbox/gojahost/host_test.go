package gojahost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/args"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/executor"
)

// addModule exports add(i32, i32) i32
var addModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

// boundedConfig accepts heap ceilings
func boundedConfig() Config {
	config := DefaultConfig()
	config.EnableHeapLimit = true
	return config
}

func newTestHost(t *testing.T, config Config) *Host {
	t.Helper()
	conn, err := NewConnector(config, nil).Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn.(*Host)
}

func newTestIsolate(t *testing.T, h *Host, maxHeap int64) sandbox.Isolate {
	t.Helper()
	iso, err := h.CreateIsolate(context.Background(), maxHeap)
	require.NoError(t, err)
	t.Cleanup(func() { _ = iso.Close() })
	return iso
}

func evaluate(t *testing.T, iso sandbox.Isolate, script string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return iso.Evaluate(ctx, script)
}

func TestIsolateExecution(t *testing.T) {
	h := newTestHost(t, DefaultConfig())

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"number", "JSON.stringify(40 + 2)", "42"},
		{"string", "JSON.stringify('hello'.toUpperCase())", `"HELLO"`},
		{"object", "JSON.stringify({a: [1, 2]})", `{"a":[1,2]}`},
		{"undefined result", "JSON.stringify(undefined)", ""},
		{"promise", "Promise.resolve(7).then(function(v) { return JSON.stringify(v * 6); })", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iso := newTestIsolate(t, h, 0)
			got, err := evaluate(t, iso, tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWrappedEntryPoint(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso := newTestIsolate(t, h, 0)

	script := executor.BuildScript(
		"function __rb_entry_point(a) { return a + 1; }",
		executor.BuildWrapper("__rb_entry_point", []args.Argument{args.Int("a", 41)}, false),
	)
	got, err := evaluate(t, iso, script)
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestMissingEntryPoint(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso := newTestIsolate(t, h, 0)

	_, err := evaluate(t, iso, executor.BuildScript("", executor.BuildWrapper("missingFn", nil, false)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missingFn is not defined")
}

func TestRejectedPromise(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso := newTestIsolate(t, h, 0)

	_, err := evaluate(t, iso, "Promise.reject(new Error('nope'))")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	_, err = evaluate(t, iso, "new Promise(function() {})")
	assert.ErrorContains(t, err, "did not settle")
}

func TestWasmModuleEntryPoint(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso := newTestIsolate(t, h, 0)

	ok, err := iso.ProvideNamedData(context.Background(), executor.ModuleDataName, addModule)
	require.NoError(t, err)
	require.True(t, ok)

	script := executor.BuildScript(
		`function run(a, b, m) {
			return WebAssembly.instantiate(m).then(function(inst) { return inst.exports.add(a, b); });
		}`,
		executor.BuildWrapper("run", []args.Argument{args.Int("a", 2), args.Int("b", 3)}, true),
	)
	got, err := evaluate(t, iso, script)
	require.NoError(t, err)
	assert.Equal(t, "5", got)
}

func TestWasmInstantiateFromBytes(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso := newTestIsolate(t, h, 0)

	ok, err := iso.ProvideNamedData(context.Background(), "mod", addModule)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := evaluate(t, iso, `
		sandbox.consumeNamedDataAsArrayBuffer("mod")
			.then(function(b) { return WebAssembly.instantiate(b); })
			.then(function(r) { return JSON.stringify(r.instance.exports.add(-4, 10)); })`)
	require.NoError(t, err)
	assert.Equal(t, "6", got)
}

func TestWasmRejectsGarbage(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso := newTestIsolate(t, h, 0)

	_, err := evaluate(t, iso, `WebAssembly.compile(new Uint8Array([1, 2, 3]))`)
	assert.ErrorContains(t, err, "compile module")

	_, err = evaluate(t, iso, `WebAssembly.compile("not bytes")`)
	assert.ErrorContains(t, err, errNotBuffer.Error())
}

func TestWasmDisabled(t *testing.T) {
	config := DefaultConfig()
	config.EnableWasm = false
	h := newTestHost(t, config)

	ok, err := h.IsFeatureSupported(context.Background(), sandbox.FeatureWasmCompilation)
	require.NoError(t, err)
	assert.False(t, ok)

	iso := newTestIsolate(t, h, 0)
	got, err := evaluate(t, iso, "JSON.stringify(typeof WebAssembly)")
	require.NoError(t, err)
	assert.Equal(t, `"undefined"`, got)
}

func TestNamedDataIsConsumed(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso := newTestIsolate(t, h, 0)

	ok, err := iso.ProvideNamedData(context.Background(), "blob", []byte{1, 2, 3})
	require.NoError(t, err)
	require.True(t, ok)

	script := `sandbox.consumeNamedDataAsArrayBuffer("blob")
		.then(function(b) { return JSON.stringify(new Uint8Array(b).length); })`

	got, err := evaluate(t, iso, script)
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	_, err = evaluate(t, iso, script)
	assert.ErrorContains(t, err, `no data named "blob"`)
}

func TestNamedDataLargerThanCeilingIsRefused(t *testing.T) {
	h := newTestHost(t, boundedConfig())
	iso := newTestIsolate(t, h, 1<<20)

	ok, err := iso.ProvideNamedData(context.Background(), "big", make([]byte, 2<<20))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRuntimeSecurity(t *testing.T) {
	h := newTestHost(t, DefaultConfig())

	dangerousScripts := []struct {
		name   string
		script string
	}{
		{"require blocked", "require('fs')"},
		{"process blocked", "process.exit(1)"},
		{"eval blocked", "eval('1 + 1')"},
		{"Function blocked", "Function('return 1')()"},
		{"function constructor blocked", "(function() {}).constructor('return 1')()"},
		{"async function constructor blocked", "(async function() {}).constructor('return 1')"},
		{"generator constructor blocked", "(function*() {}).constructor('yield 1')"},
		{"stack overflow", "function f() { return f(); } f()"},
	}

	for _, tt := range dangerousScripts {
		t.Run(tt.name, func(t *testing.T) {
			iso := newTestIsolate(t, h, 0)
			_, err := evaluate(t, iso, tt.script)
			assert.Error(t, err)
		})
	}

	iso := newTestIsolate(t, h, 0)
	got, err := evaluate(t, iso, "JSON.stringify([typeof require, typeof process, typeof module, typeof exports, typeof eval, typeof Function])")
	require.NoError(t, err)
	assert.Equal(t, `["undefined","undefined","undefined","undefined","undefined","undefined"]`, got)

	// ordinary functions still work
	got, err = evaluate(t, iso, "JSON.stringify([1, 2].map(function(n) { return n * 2; }))")
	require.NoError(t, err)
	assert.Equal(t, "[2,4]", got)
}

func TestIsolatesDoNotShareGlobals(t *testing.T) {
	h := newTestHost(t, DefaultConfig())

	first := newTestIsolate(t, h, 0)
	_, err := evaluate(t, first, "var leaked = 1;")
	require.NoError(t, err)

	second := newTestIsolate(t, h, 0)
	got, err := evaluate(t, second, "JSON.stringify(typeof leaked)")
	require.NoError(t, err)
	assert.Equal(t, `"undefined"`, got)
}

func TestCancellationInterruptsScript(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso := newTestIsolate(t, h, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := iso.Evaluate(ctx, "while (true) {}")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the isolate is usable again after an interrupt
	got, err := evaluate(t, iso, "JSON.stringify(1)")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestHeapCeilingInterruptsScript(t *testing.T) {
	config := boundedConfig()
	config.HeapPollInterval = time.Millisecond
	h := newTestHost(t, config)
	iso := newTestIsolate(t, h, config.MinHeapBytes)

	_, err := evaluate(t, iso, "var keep = []; while (true) { keep.push(new Array(1024).fill(1)); }")
	assert.ErrorIs(t, err, ErrHeapExceeded)
}

func TestHeapCeilingIgnoresConcurrentIsolates(t *testing.T) {
	config := boundedConfig()
	config.HeapPollInterval = time.Millisecond
	h := newTestHost(t, config)

	bounded := newTestIsolate(t, h, 8<<20)
	unbounded := newTestIsolate(t, h, 0)

	type outcome struct {
		got string
		err error
	}
	boundedDone := make(chan outcome, 1)
	unboundedDone := make(chan outcome, 1)

	go func() {
		got, err := evaluate(t, unbounded, `
			var keep = [];
			for (var n = 0; n < 3000000; n++) { keep.push({n: n}); }
			JSON.stringify(keep.length)`)
		unboundedDone <- outcome{got, err}
	}()
	go func() {
		got, err := evaluate(t, bounded, `
			var start = Date.now(), sum = 0;
			while (Date.now() - start < 300) { sum = (sum + 1) % 1000; }
			JSON.stringify(true)`)
		boundedDone <- outcome{got, err}
	}()

	b := <-boundedDone
	require.NoError(t, b.err, "allocations in another isolate must not count against this ceiling")
	assert.Equal(t, "true", b.got)

	u := <-unboundedDone
	require.NoError(t, u.err)
	assert.Equal(t, "3000000", u.got)
}

func TestHeapCeilingValidation(t *testing.T) {
	h := newTestHost(t, boundedConfig())

	_, err := h.CreateIsolate(context.Background(), 1024)
	assert.ErrorIs(t, err, sandbox.ErrHeapCeilingRejected)

	_, err = h.CreateIsolate(context.Background(), -1)
	assert.ErrorIs(t, err, sandbox.ErrHeapCeilingRejected)

	disabled := newTestHost(t, DefaultConfig())
	_, err = disabled.CreateIsolate(context.Background(), 64<<20)
	assert.ErrorIs(t, err, sandbox.ErrHeapCeilingRejected)

	iso := newTestIsolate(t, disabled, 0)
	assert.NotEmpty(t, iso.ID())
}

func TestFeatures(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	for _, f := range []sandbox.Feature{
		sandbox.FeatureWasmCompilation,
		sandbox.FeatureProvideConsumeArrayBuffer,
		sandbox.FeaturePromiseReturn,
	} {
		ok, err := h.IsFeatureSupported(context.Background(), f)
		require.NoError(t, err)
		assert.True(t, ok, string(f))
	}

	// heap ceilings are opt-in
	ok, err := h.IsFeatureSupported(context.Background(), sandbox.FeatureIsolateMaxHeapSize)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = newTestHost(t, boundedConfig()).IsFeatureSupported(context.Background(), sandbox.FeatureIsolateMaxHeapSize)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.IsFeatureSupported(context.Background(), sandbox.Feature("TIME_TRAVEL"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClosedHost(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso := newTestIsolate(t, h, 0)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err := h.CreateIsolate(context.Background(), 0)
	assert.ErrorIs(t, err, sandbox.ErrConnectionClosed)
	_, err = h.IsFeatureSupported(context.Background(), sandbox.FeaturePromiseReturn)
	assert.ErrorIs(t, err, sandbox.ErrConnectionClosed)

	// isolates handed out before the close keep working
	got, err := evaluate(t, iso, "JSON.stringify(true)")
	require.NoError(t, err)
	assert.Equal(t, "true", got)
}

func TestIsolateClose(t *testing.T) {
	h := newTestHost(t, DefaultConfig())
	iso, err := h.CreateIsolate(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Active())

	_, err = evaluate(t, iso, "WebAssembly.compile(new Uint8Array([0, 97, 115, 109, 1, 0, 0, 0]))")
	require.NoError(t, err)

	require.NoError(t, iso.Close())
	require.NoError(t, iso.Close())
	assert.Zero(t, h.Active())

	_, err = evaluate(t, iso, "1")
	assert.ErrorIs(t, err, sandbox.ErrIsolateClosed)
	_, err = iso.ProvideNamedData(context.Background(), "x", nil)
	assert.ErrorIs(t, err, sandbox.ErrIsolateClosed)
}

func TestConsoleForwardedToLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	conn, err := NewConnector(DefaultConfig(), zap.New(core)).Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	iso, err := conn.CreateIsolate(context.Background(), 0)
	require.NoError(t, err)
	defer iso.Close()

	_, err = evaluate(t, iso, "console.log('hello', 42); console.warn('careful')")
	require.NoError(t, err)

	entries := logs.FilterMessage("Script console").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "hello 42", entries[0].ContextMap()["message"])
	assert.Equal(t, "log", entries[0].ContextMap()["level"])
	assert.Equal(t, iso.ID(), entries[0].ContextMap()["isolate_id"])
	assert.Equal(t, "warn", entries[1].ContextMap()["level"])
}

func TestConsoleDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	config := DefaultConfig()
	config.EnableConsole = false

	conn, err := NewConnector(config, zap.New(core)).Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	iso, err := conn.CreateIsolate(context.Background(), 0)
	require.NoError(t, err)
	defer iso.Close()

	_, err = evaluate(t, iso, "console.log('quiet')")
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("Script console").Len())
}

func TestConnectorValidatesConfig(t *testing.T) {
	config := DefaultConfig()
	config.MaxCallStackSize = 0
	_, err := NewConnector(config, nil).Connect(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewConnector(DefaultConfig(), nil).Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryPages(t *testing.T) {
	assert.Equal(t, uint32(0), memoryPages(0))
	assert.Equal(t, uint32(1), memoryPages(100))
	assert.Equal(t, uint32(16), memoryPages(1<<20))
	assert.Equal(t, uint32(maxWasmPages), memoryPages(1<<40))
}
