// Package client is a typed client for the IPC debugger HTTP API.
//
// Built on go-resty/resty over a go-retryablehttp transport:
//   - GET requests retry with backoff on transport errors and 5xx
//   - Operations that change state are sent exactly once
//   - A circuit breaker opens on repeated server failures; domain errors
//     such as ResourceBusy or Timeout count as healthy answers
//   - Optional token bucket rate limiting
//   - Trace headers propagated when a tracer is set
//
// Server errors come back as *APIError, which unwraps to the matching ipc
// sentinel so callers can test them with errors.Is.
//
// Example Usage:
//
//	c := client.New(client.Config{BaseURL: "http://localhost:8080"})
//	a, _ := c.CreateActor(ctx, "producer")
//	q, _ := c.CreateResource(ctx, client.ResourceRequest{Kind: "queue", Capacity: 8})
//	err := c.Put(ctx, a.ID, q.ID, []byte("job"), 0)
package client
