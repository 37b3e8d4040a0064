package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/orchestrator"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/scenario"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// DefaultAsyncGrace is how long an async operation may take before the
// request returns 202 and leaves it running
const DefaultAsyncGrace = 25 * time.Millisecond

// Handlers serves the control and query API
type Handlers struct {
	orch       *orchestrator.Orchestrator
	runner     *scenario.Runner
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	started    time.Time
	asyncGrace time.Duration

	pending sync.WaitGroup // async operations still running
}

// Option configures Handlers
type Option func(*Handlers)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(h *Handlers) { h.logger = log }
}

// WithMetrics exposes the metrics summary on /stats
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Handlers) { h.metrics = m }
}

// WithAsyncGrace sets how long async operations are awaited before 202
func WithAsyncGrace(d time.Duration) Option {
	return func(h *Handlers) { h.asyncGrace = d }
}

// NewHandlers creates the API handlers
func NewHandlers(orch *orchestrator.Orchestrator, runner *scenario.Runner, opts ...Option) *Handlers {
	h := &Handlers{
		orch:       orch,
		runner:     runner,
		logger:     zap.NewNop(),
		started:    time.Now(),
		asyncGrace: DefaultAsyncGrace,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Wait blocks until every async operation has returned
func (h *Handlers) Wait() {
	h.pending.Wait()
}

// Root describes the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "ipc-debugger",
		"version": Version,
		"kinds":   ipc.Kinds,
	})
}

// Health reports liveness and a few counters
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"actors":         len(h.orch.Actors()),
		"resources":      len(h.orch.Resources()),
		"last_event":     h.orch.Log().Last(),
	})
}

// StatusOf maps an error onto its HTTP status
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ipc.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ipc.ErrAccessViolation):
		return http.StatusForbidden
	case errors.Is(err, ipc.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ipc.ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, ipc.ErrResourceBusy), errors.Is(err, ipc.ErrCanceled):
		return http.StatusConflict
	case errors.Is(err, ipc.ErrClosed):
		return http.StatusGone
	case errors.Is(err, ipc.ErrOutOfBounds):
		return http.StatusRequestedRangeNotSatisfiable
	}
	return http.StatusInternalServerError
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"kind":    ipc.ErrorKind(err),
	})
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	h.fail(c, invalid(err))
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ipc.ErrInvalidArgument, err)
}

func actorParam(c *gin.Context) (id.ActorID, error) {
	a, err := id.ParseActorID(c.Param("id"))
	if err != nil {
		return 0, invalid(err)
	}
	return a, nil
}

func resourceParam(c *gin.Context) (id.ResourceID, error) {
	r, err := id.ParseResourceID(c.Param("id"))
	if err != nil {
		return 0, invalid(err)
	}
	return r, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: query parameter %s must be a non-negative integer", ipc.ErrInvalidArgument, key)
	}
	return n, nil
}
