/*
Package monitoring provides metrics collection for the script runtime.

# Overview

This package implements Prometheus-based metrics for evaluations, isolates
and the sandbox connection, plus HTTP request metrics for the API surface.
Each Metrics value owns a private registry so several runtimes (and tests)
can coexist in one process.

# Features

- Evaluation outcomes by failure kind and duration
- Open isolate gauge and close results
- Connect attempts and connection state
- HTTP request metrics (latency, status)

# Usage

	metrics := monitoring.NewMetrics()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, false)
	// ... evaluate ...
	timer.Stop("success")

A nil *Metrics is valid and records nothing.
*/
package monitoring
