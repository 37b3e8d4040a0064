package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond, 0, 0)
		m.RecordOperation("pipe", "write", "ok", time.Millisecond)
		m.RecordDeadlock(2)
		m.IncDetectorRuns()
		m.SetActorsActive(1)
		m.IncActorsTotal()
		m.SetResourcesActive("queue", 1)
		m.RecordScenario("s", "ok")
		m.RecordWSMessage("out", "event")
		m.IncWSConnections()
		m.DecWSConnections()
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestRecordOperation(t *testing.T) {
	m := NewMetrics()
	m.RecordOperation("pipe", "write", "ok", time.Millisecond)
	m.RecordOperation("pipe", "write", "Timeout", time.Millisecond)
	m.RecordOperation("queue", "get", "ok", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("pipe", "write", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("pipe", "write", "Timeout")))

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalOps)
	assert.Equal(t, int64(1), s.FailedOps)
}

func TestRecordDeadlockAndGauges(t *testing.T) {
	m := NewMetrics()
	m.RecordDeadlock(3)
	m.IncDetectorRuns()
	m.SetActorsActive(4)
	m.SetResourcesActive("lock", 2)
	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadlocksDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetectorRuns))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ActorsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResourcesActive.WithLabelValues("lock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnections))
	assert.Equal(t, int64(1), m.Snapshot().Deadlocks)
}

func TestInstancesDoNotShareRegistry(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.IncActorsTotal()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ActorsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ActorsTotal))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/actors/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for _, p := range []string{"/actors/1", "/actors/2", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/actors/:id", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(3), s.TotalErrors)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `ipcdbg_http_requests_total{method="GET",path="/actors/:id",status="404"} 2`), body)
	assert.Contains(t, body, "go_goroutines")
	assert.NotContains(t, body, `path="/metrics"`, "scrapes are not counted")
	assert.Equal(t, int64(3), m.Snapshot().TotalRequests)
}
