// Package main is the entry point for the scriptbox evaluation server.
//
// The server runs untrusted JavaScript, optionally alongside a WebAssembly
// module, in disposable isolates and returns the JSON-encoded result.
//
// Architecture:
//
//	HTTP (gin) → Evaluator → Executor → Connection Manager → goja host
//	                                                      → wazero (wasm)
//
// The server provides:
//   - POST /evaluate for script and module evaluation
//   - GET /capabilities for the negotiated feature snapshot
//   - POST /shutdown to drop the live sandbox connection
//   - GET /metrics for Prometheus
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -workers 8
//
//	# Development mode (colored logs, debug level)
//	./server -dev -log-level debug
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
