/*
Package gojahost is an in-process sandbox backed by the goja JavaScript engine.

# Overview

A Host implements sandbox.Connection. Each isolate it creates is a fresh goja
VM with its own global scope, so nothing leaks between evaluations:

  - Hardened globals (no require, process, module, exports or eval)
  - Bounded call stack
  - console.log/info/warn/error forwarded to the structured logger
  - sandbox.consumeNamedDataAsArrayBuffer for binary data handed in by the host
  - WebAssembly.compile and WebAssembly.instantiate backed by wazero

# Resource Limits

goja has no per-VM heap accounting, so heap ceilings are approximate and
only offered when Config.EnableHeapLimit is set. A bounded isolate runs a
watchdog that samples process heap growth while a script executes and
interrupts the VM once growth exceeds the ceiling. Growth only counts while
the isolate is the only one open on its host. The ceiling also bounds the
linear memory of compiled modules. Ceilings below Config.MinHeapBytes are
rejected at creation.

Cancelling the context passed to Evaluate interrupts the running script and
any module call it is inside.

# Lifecycle

Closing a Host refuses new isolates with sandbox.ErrConnectionClosed; isolates
already handed out stay usable until they are closed.

# Usage Example

	conn, err := gojahost.NewConnector(gojahost.DefaultConfig(), logger).Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	iso, err := conn.CreateIsolate(ctx, 0)
	if err != nil {
		return err
	}
	defer iso.Close()

	out, err := iso.Evaluate(ctx, "JSON.stringify(40 + 2)")
*/
package gojahost
