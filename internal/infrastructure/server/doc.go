// Package server wires configuration, logging, metrics and the sandbox
// evaluator behind a gin router.
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger (production or development)
//  3. Build the goja connector and evaluator
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server
//  6. Graceful shutdown on signal, then sandbox teardown
//
// The sandbox connection is opened lazily by the first request that needs it.
package server
