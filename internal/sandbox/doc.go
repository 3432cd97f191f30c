/*
Package sandbox defines the boundary between the script runtime and the
isolated execution environment that actually runs untrusted code.

# Overview

The runtime talks to the sandbox through three contracts:

  - Connector: establishes a Connection (process spawn, IPC, in-process host)
  - Connection: shared handle used to probe features and create isolates
  - Isolate: disposable, resource-bounded context that runs one script

Everything the runtime needs from a sandbox is expressed by these interfaces,
so transports can be swapped without touching the orchestration code.

# Settings

Settings describe the resource limits requested for one isolate:

	settings := sandbox.Settings{
		MaxHeapBytes:       64 << 20,
		EnforceHeapCeiling: true,
	}

A ceiling is only requested when EnforceHeapCeiling is set and MaxHeapBytes
is positive. An enforced ceiling of zero means "unbounded" but still
requires the sandbox to support configurable ceilings.

# Errors

Failures are classified by Kind. Every Kind has a sentinel error so callers
can use errors.Is:

	if errors.Is(err, sandbox.ErrSandboxConnectionLost) {
		// the next call reconnects
	}

Use KindOf to branch on the kind directly.

# Script protocol

Hosts expose a small set of globals to scripts. Named binary data handed over
with ProvideNamedData is consumed with ConsumeNamedDataFunc, which returns a
promise of an ArrayBuffer. When wasm compilation is supported, the global
WebAssembly object offers compile and instantiate.
*/
package sandbox
