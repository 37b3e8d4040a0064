package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New("test", zap.New(core)), logs
}

func TestStartJoinsParent(t *testing.T) {
	tracer := New("test", zap.NewNop())
	defer tracer.Close()

	ctx, root := tracer.Start(context.Background(), "root")
	assert.True(t, strings.HasPrefix(string(root.TraceID), "tr_"))
	assert.Empty(t, root.ParentID)
	assert.Equal(t, root.TraceID, TraceIDFrom(ctx))
	assert.Equal(t, root.SpanID, SpanIDFrom(ctx))

	_, child := tracer.Start(ctx, "child")
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
}

func TestEndLogsSpan(t *testing.T) {
	tracer, logs := observed()

	_, ok := tracer.Start(context.Background(), "GET /stats")
	ok.Attr("ipc.resource", "r1")
	ok.End(http.StatusOK)

	_, bad := tracer.Start(context.Background(), "POST /reset")
	bad.Fail(errors.New("boom"))
	bad.End(0)

	tracer.Close()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Span finished", entries[0].Message)
	assert.Equal(t, "r1", entries[0].ContextMap()["ipc.resource"])
	assert.Equal(t, "Span failed", entries[1].Message)
	assert.Equal(t, int64(http.StatusInternalServerError), entries[1].ContextMap()["status"])
	assert.Equal(t, http.StatusInternalServerError, bad.Status)
}

func TestInjectExtract(t *testing.T) {
	ctx := WithTraceID(context.Background(), "tr_abc")
	h := http.Header{}
	Inject(ctx, h)
	assert.Equal(t, "tr_abc", h.Get(TraceHeader))
	assert.Empty(t, h.Get(SpanHeader))

	got := Extract(context.Background(), h)
	assert.Equal(t, TraceID("tr_abc"), TraceIDFrom(got))

	empty := Extract(context.Background(), http.Header{})
	assert.Empty(t, TraceIDFrom(empty))
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := observed()

	var seen TraceID
	r := gin.New()
	r.Use(HTTPMiddleware(tracer))
	r.GET("/resources/:id", func(c *gin.Context) {
		seen = TraceIDFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		incoming string
	}{
		{"new trace", ""},
		{"continued trace", "tr_incoming"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/resources/r1", nil)
			if tt.incoming != "" {
				req.Header.Set(TraceHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, string(seen), w.Header().Get(TraceHeader))
			assert.NotEmpty(t, w.Header().Get(SpanHeader))
			if tt.incoming != "" {
				assert.Equal(t, TraceID(tt.incoming), seen)
			}
		})
	}

	tracer.Close()
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "GET /resources/:id", entries[0].ContextMap()["name"])
	assert.Equal(t, "r1", entries[0].ContextMap()["ipc.resource"])
}

func TestEndAfterClose(t *testing.T) {
	tracer := New("test", nil)
	tracer.Close()
	tracer.Close()

	_, span := tracer.Start(context.Background(), "late")
	assert.NotPanics(t, func() { span.End(http.StatusOK) })
}
