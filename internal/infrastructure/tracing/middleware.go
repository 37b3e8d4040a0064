package tracing

import (
	"github.com/gin-gonic/gin"
)

// HTTPMiddleware wraps each request in a span named after its route and
// echoes the trace and span IDs back in the response headers. Operations
// on a resource carry its path ID as ipc.resource.
func HTTPMiddleware(t *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx, span := t.Start(Extract(c.Request.Context(), c.Request.Header), c.Request.Method+" "+route)
		if rid := c.Param("id"); rid != "" {
			span.Attr("ipc.resource", rid)
		}
		if c.Request.URL.RawQuery != "" {
			span.Attr("http.query", c.Request.URL.RawQuery)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		if err := c.Errors.Last(); err != nil {
			span.Fail(err)
		}
		span.End(c.Writer.Status())
	}
}
