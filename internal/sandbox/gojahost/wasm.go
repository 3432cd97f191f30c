package gojahost

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const (
	wasmPageSize = 65536
	maxWasmPages = 65536
)

var errNotBuffer = errors.New("expected an ArrayBuffer or Uint8Array")

// wasmBridge exposes a WebAssembly object backed by wazero
type wasmBridge struct {
	iso     *Isolate
	runtime wazero.Runtime
}

// compiledModule is the script-side handle for a compiled module
type compiledModule struct {
	compiled wazero.CompiledModule
}

func newWasmBridge(iso *Isolate) *wasmBridge {
	return &wasmBridge{iso: iso}
}

func (b *wasmBridge) install() error {
	obj := b.iso.vm.NewObject()
	if err := obj.Set("compile", b.compile); err != nil {
		return err
	}
	if err := obj.Set("instantiate", b.instantiate); err != nil {
		return err
	}
	return b.iso.vm.Set("WebAssembly", obj)
}

// rt creates the wazero runtime on first use
func (b *wasmBridge) rt() wazero.Runtime {
	if b.runtime == nil {
		config := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
		if pages := memoryPages(b.iso.maxHeap); pages > 0 {
			config = config.WithMemoryLimitPages(pages)
		}
		b.runtime = wazero.NewRuntimeWithConfig(context.Background(), config)
	}
	return b.runtime
}

// compile implements WebAssembly.compile(buffer) -> Promise<Module>
func (b *wasmBridge) compile(call goja.FunctionCall) goja.Value {
	vm := b.iso.vm
	promise, resolve, reject := vm.NewPromise()

	mod, err := b.compileValue(call.Argument(0))
	if err != nil {
		reject(vm.NewGoError(err))
	} else {
		resolve(vm.ToValue(mod))
	}
	return vm.ToValue(promise)
}

// instantiate implements WebAssembly.instantiate. A compiled module resolves
// to an Instance; raw bytes resolve to {module, instance}.
func (b *wasmBridge) instantiate(call goja.FunctionCall) goja.Value {
	vm := b.iso.vm
	promise, resolve, reject := vm.NewPromise()
	arg := call.Argument(0)

	if mod, ok := arg.Export().(*compiledModule); ok {
		inst, err := b.instantiateModule(mod)
		if err != nil {
			reject(vm.NewGoError(err))
		} else {
			resolve(inst)
		}
		return vm.ToValue(promise)
	}

	mod, err := b.compileValue(arg)
	if err != nil {
		reject(vm.NewGoError(err))
		return vm.ToValue(promise)
	}
	inst, err := b.instantiateModule(mod)
	if err != nil {
		reject(vm.NewGoError(err))
		return vm.ToValue(promise)
	}

	result := vm.NewObject()
	_ = result.Set("module", vm.ToValue(mod))
	_ = result.Set("instance", inst)
	resolve(result)
	return vm.ToValue(promise)
}

func (b *wasmBridge) compileValue(v goja.Value) (*compiledModule, error) {
	code, ok := bufferBytes(v)
	if !ok {
		return nil, fmt.Errorf("compile module: %w", errNotBuffer)
	}

	compiled, err := b.rt().CompileModule(b.iso.context(), code)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}
	return &compiledModule{compiled: compiled}, nil
}

func (b *wasmBridge) instantiateModule(mod *compiledModule) (*goja.Object, error) {
	vm := b.iso.vm

	// Anonymous so the same module can be instantiated repeatedly
	instance, err := b.rt().InstantiateModule(b.iso.context(), mod.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("instantiate module: %w", err)
	}

	exports := vm.NewObject()
	for name, def := range mod.compiled.ExportedFunctions() {
		fn := instance.ExportedFunction(name)
		if fn == nil {
			continue
		}
		if err := exports.Set(name, b.wrapFunction(name, def, fn)); err != nil {
			return nil, err
		}
	}

	obj := vm.NewObject()
	if err := obj.Set("exports", exports); err != nil {
		return nil, err
	}
	return obj, nil
}

// wrapFunction adapts an exported module function to a JS function
func (b *wasmBridge) wrapFunction(name string, def api.FunctionDefinition, fn api.Function) func(goja.FunctionCall) goja.Value {
	vm := b.iso.vm
	params := def.ParamTypes()
	results := def.ResultTypes()

	return func(call goja.FunctionCall) goja.Value {
		stack := make([]uint64, len(params))
		for n, t := range params {
			stack[n] = encodeValue(t, call.Argument(n))
		}

		out, err := fn.Call(b.iso.context(), stack...)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("call %s: %w", name, err)))
		}

		switch len(out) {
		case 0:
			return goja.Undefined()
		case 1:
			return vm.ToValue(decodeValue(results[0], out[0]))
		default:
			values := make([]interface{}, len(out))
			for n, raw := range out {
				values[n] = decodeValue(results[n], raw)
			}
			return vm.ToValue(values)
		}
	}
}

func (b *wasmBridge) close() error {
	if b.runtime == nil {
		return nil
	}
	err := b.runtime.Close(context.Background())
	b.runtime = nil
	return err
}

func encodeValue(t api.ValueType, v goja.Value) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(v.ToInteger()))
	case api.ValueTypeI64:
		return api.EncodeI64(v.ToInteger())
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v.ToFloat()))
	case api.ValueTypeF64:
		return api.EncodeF64(v.ToFloat())
	default:
		return 0
	}
}

func decodeValue(t api.ValueType, raw uint64) interface{} {
	switch t {
	case api.ValueTypeI32:
		return api.DecodeI32(raw)
	case api.ValueTypeI64:
		return int64(raw)
	case api.ValueTypeF32:
		return float64(api.DecodeF32(raw))
	case api.ValueTypeF64:
		return api.DecodeF64(raw)
	default:
		return raw
	}
}

func bufferBytes(v goja.Value) ([]byte, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	switch b := v.Export().(type) {
	case goja.ArrayBuffer:
		return b.Bytes(), true
	case []byte:
		return b, true
	default:
		return nil, false
	}
}

// memoryPages converts a heap ceiling to a linear memory page limit; zero
// means no limit
func memoryPages(maxHeap int64) uint32 {
	if maxHeap <= 0 {
		return 0
	}
	pages := maxHeap / wasmPageSize
	switch {
	case pages < 1:
		return 1
	case pages > maxWasmPages:
		return maxWasmPages
	default:
		return uint32(pages)
	}
}
