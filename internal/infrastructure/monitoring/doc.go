/*
Package monitoring provides Prometheus metrics for the debugger.

# Overview

Each Metrics value owns its own registry, so tests and embedded servers can
create as many as they like without duplicate registration panics. A nil
*Metrics is accepted everywhere and records nothing.

# Features

- HTTP request metrics (latency, throughput, size)
- Resource operation metrics by kind, operation and outcome
- Actor and resource gauges
- Deadlock detector metrics (runs, reports, cycle size)
- Scenario and WebSocket metrics
- Go runtime and process collectors

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.RecordOperation("pipe", "write", "ok", time.Since(start))
*/
package monitoring
