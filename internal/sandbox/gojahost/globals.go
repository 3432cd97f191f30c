package gojahost

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// blockedGlobals are hidden from scripts
var blockedGlobals = []string{"require", "process", "module", "exports"}

// lockConstructors makes every function constructor throw, so source text
// cannot be compiled through fn.constructor once eval and Function are gone
const lockConstructors = `(function() {
	var refuse = function() { throw new TypeError('code generation from strings is disabled'); };
	[function() {}, async function() {}, function*() {}].forEach(function(fn) {
		Object.defineProperty(Object.getPrototypeOf(fn), 'constructor', {
			value: refuse,
			writable: false,
			configurable: false
		});
	});
})();`

// setupGlobals configures global objects and security
func (i *Isolate) setupGlobals() error {
	vm := i.vm

	for _, name := range blockedGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}
	if _, err := vm.RunString(lockConstructors); err != nil {
		return err
	}
	vm.GlobalObject().Delete("eval")
	vm.GlobalObject().Delete("Function")

	// Timers are no-ops; a script waiting on one never settles
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		if err := vm.Set(name, noop); err != nil {
			return err
		}
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(level, i.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	box := vm.NewObject()
	if err := box.Set("consumeNamedDataAsArrayBuffer", i.consumeNamedData); err != nil {
		return err
	}
	if err := vm.Set("sandbox", box); err != nil {
		return err
	}

	if i.host.config.EnableWasm {
		i.wasm = newWasmBridge(i)
		return i.wasm.install()
	}
	return nil
}

// makeConsoleFunc creates a console function
func (i *Isolate) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !i.host.config.EnableConsole {
			return goja.Undefined()
		}

		parts := make([]string, len(call.Arguments))
		for n, arg := range call.Arguments {
			parts[n] = arg.String()
		}

		i.logger.Info("Script console",
			zap.String("level", level),
			zap.String("message", strings.Join(parts, " ")),
		)
		return goja.Undefined()
	}
}

// consumeNamedData resolves with the named payload as an ArrayBuffer and
// removes it from the isolate
func (i *Isolate) consumeNamedData(call goja.FunctionCall) goja.Value {
	vm := i.vm
	name := call.Argument(0).String()
	promise, resolve, reject := vm.NewPromise()

	if data, ok := i.consume(name); ok {
		resolve(vm.NewArrayBuffer(data))
	} else {
		reject(vm.NewTypeError("no data named %q", name))
	}
	return vm.ToValue(promise)
}
