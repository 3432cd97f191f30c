/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

This package implements the circuit breaker pattern. The script runtime uses
it to stop hammering a sandbox that keeps failing to start: after repeated
connect failures the breaker opens and further attempts fail fast until the
timeout elapses.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Consecutive-failure threshold and cooldown
- A single trial call while half-open
- Pluggable failure classification (IsFailure)
- State change callbacks for monitoring

# Usage

	// Create a circuit breaker
	breaker := resilience.New("sandbox", resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	// Execute request through breaker
	conn, err := resilience.Execute(breaker, func() (sandbox.Connection, error) {
		return connector.Connect(ctx)
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: One trial call decides between Closed and Open

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[success]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
