// Package middleware holds the gin middleware of the debugger API: CORS for
// browser displays, per-client rate limiting and request logging.
package middleware
