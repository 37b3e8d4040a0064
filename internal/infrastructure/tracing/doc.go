// Package tracing follows debugger API calls from ipcctl through the server.
//
// Each request runs inside a Span. A client that sends X-Trace-ID (and
// optionally X-Span-ID) has its trace continued, so a scripted CLI session
// shows up in the server log under one trace ID. Finished spans are logged
// by a collector goroutine; Close flushes it.
//
//	tracer := tracing.New("ipc-debugger", logger)
//	defer tracer.Close()
//	router.Use(tracing.HTTPMiddleware(tracer))
//
//	ctx, span := tracer.Start(ctx, "GET /snapshot")
//	tracing.Inject(ctx, req.Header)
//	span.End(resp.StatusCode)
package tracing
