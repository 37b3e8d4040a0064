// Package http exposes the orchestrator over a JSON control and query API.
//
// Every failure is answered with {"success": false, "error": ..., "kind": ...}
// where kind is one of the ipc error kinds; StatusOf maps kinds to statuses.
package http
