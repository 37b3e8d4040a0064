// Package config provides 12-factor configuration management for the debugger.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, CORS origins)
//   - Detector: Periodic deadlock detection (interval, history)
//   - EventLog: Retention of the shared event log
//   - Defaults: Resource configuration applied when a request leaves it unset
//   - Scenarios: Scenario file directory and settle period
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, CORS_ORIGINS
//   - DETECTOR_ENABLED, DETECTOR_INTERVAL, DETECTOR_HISTORY
//   - EVENTLOG_RETENTION
//   - PIPE_CAPACITY, QUEUE_CAPACITY, SHM_SIZE, OP_TIMEOUT
//   - SCENARIO_DIR, SCENARIO_SETTLE
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
