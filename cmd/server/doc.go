// Package main is the entry point for the IPC debugger server.
//
// The server hosts a simulation of interprocess communication: actors
// exchange data over pipes, message queues, shared memory and locks while
// every state change lands in an event log and a periodic detector looks
// for deadlocks in the wait-for graph.
//
// The server provides:
//   - REST API for actors, resources, blocking operations and scenarios
//   - WebSocket event stream at /events/stream
//   - Deadlock reports, resource graph and snapshot export
//   - Prometheus metrics at /metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8080 -scenarios ./scenarios
//
//	# Development mode (console logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
