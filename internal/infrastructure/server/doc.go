// Package server assembles the IPC debugger service.
//
// This package wires every component together:
//   - Orchestrator built from configuration (retention, defaults, detector)
//   - Scenario runner with scripts loaded from the scenario directory
//   - HTTP routing with Gin and the middleware stack (recovery, tracing,
//     metrics, request logging, CORS, rate limiting)
//   - Event stream over WebSocket at /events/stream
//   - Prometheus scrape endpoint at /metrics
//
// Server Lifecycle:
//  1. Load configuration from environment
//  2. Build logger, metrics and tracer
//  3. Create the orchestrator and load scenarios
//  4. Register routes and middleware
//  5. Serve HTTP and run the periodic detector
//  6. On cancellation close streams, wake parked operations and drain
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
