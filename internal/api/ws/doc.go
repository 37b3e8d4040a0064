// Package ws streams the event log over WebSocket.
//
// A client connects to /events/stream, optionally with ?from=<seq> to replay
// retained history and ?kind=, ?actor=, ?resource= to filter. The server
// then pushes one message per entry in sequence order.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connected, with the starting cursor
//   - event: One log entry
//   - dropped: Entries that left retention before they could be sent
//   - pong: Reply to ping
//   - error: Malformed client message
//
// Example Usage:
//
//	stream := ws.NewHandler(orch, ws.WithLogger(log))
//	router.GET("/events/stream", stream.HandleConnection)
package ws
