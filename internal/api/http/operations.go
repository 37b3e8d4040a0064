package http

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/logging"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/utils"
)

// OpRequest is the body of every per-resource operation. Fields an
// operation does not use are ignored.
type OpRequest struct {
	Actor    id.ActorID `json:"actor" binding:"required"`
	Data     string     `json:"data"`
	Encoding string     `json:"encoding"` // "base64" for binary data; plain text otherwise
	Size     int        `json:"size"`
	Offset   int        `json:"offset"`
	Priority int        `json:"priority"`
	Mode     string     `json:"mode"`
	Role     string     `json:"role"`
	Timeout  string     `json:"timeout"`
	Async    bool       `json:"async"`
}

func (r OpRequest) bytes() ([]byte, error) {
	b := []byte(r.Data)
	if r.Encoding == "base64" {
		var err error
		if b, err = base64.StdEncoding.DecodeString(r.Data); err != nil {
			return nil, invalid(err)
		}
	}
	if err := utils.ValidatePayload(b); err != nil {
		return nil, invalid(err)
	}
	return b, nil
}

func (r OpRequest) encode(b []byte) string {
	if r.Encoding == "base64" {
		return base64.StdEncoding.EncodeToString(b)
	}
	return string(b)
}

func parseMode(s string) (ipc.Mode, error) {
	if s == "" {
		return 0, nil
	}
	return ipc.ParseMode(s)
}

// bind decodes the request and the resource ID
func (h *Handlers) bind(c *gin.Context) (OpRequest, id.ResourceID, bool) {
	var req OpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return req, 0, false
	}
	rid, err := resourceParam(c)
	if err != nil {
		h.fail(c, err)
		return req, 0, false
	}
	return req, rid, true
}

// blocking runs a possibly blocking operation. Synchronous requests wait
// for it under the request context. Async requests run it in the
// background and return 202 if it has not finished within the grace period;
// its outcome then appears in the event log.
func (h *Handlers) blocking(c *gin.Context, op string, req OpRequest, rid id.ResourceID, fn func(ctx context.Context) (gin.H, error)) {
	timeout, err := parseTimeout(req.Timeout)
	if err != nil {
		h.fail(c, err)
		return
	}

	if !req.Async {
		ctx := c.Request.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		body, err := fn(ctx)
		if err != nil {
			h.fail(c, err)
			return
		}
		h.ok(c, body)
		return
	}

	type outcome struct {
		body gin.H
		err  error
	}
	done := make(chan outcome, 1)
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		body, err := fn(ctx)
		if err != nil {
			h.logger.Debug("Async operation failed",
				zap.String("op", op),
				logging.Actor(req.Actor),
				logging.Resource(rid),
				zap.Error(err))
		}
		done <- outcome{body, err}
	}()

	timer := time.NewTimer(h.asyncGrace)
	defer timer.Stop()
	select {
	case out := <-done:
		if out.err != nil {
			h.fail(c, out.err)
			return
		}
		h.ok(c, out.body)
	case <-timer.C:
		c.JSON(http.StatusAccepted, gin.H{
			"success":  true,
			"pending":  true,
			"op":       op,
			"actor":    req.Actor,
			"resource": rid,
			"cursor":   h.orch.Log().Last(),
		})
	}
}

func (h *Handlers) ok(c *gin.Context, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

// Write writes data into a pipe
func (h *Handlers) Write(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	data, err := req.bytes()
	if err != nil {
		h.fail(c, err)
		return
	}
	h.blocking(c, "write", req, rid, func(ctx context.Context) (gin.H, error) {
		if err := h.orch.Write(ctx, req.Actor, rid, data); err != nil {
			return nil, err
		}
		return gin.H{"written": len(data)}, nil
	})
}

// Read reads up to size bytes from a pipe
func (h *Handlers) Read(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	h.blocking(c, "read", req, rid, func(ctx context.Context) (gin.H, error) {
		data, err := h.orch.Read(ctx, req.Actor, rid, req.Size)
		if err != nil {
			return nil, err
		}
		return gin.H{"data": req.encode(data), "size": len(data)}, nil
	})
}

// Put enqueues a message
func (h *Handlers) Put(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	payload, err := req.bytes()
	if err != nil {
		h.fail(c, err)
		return
	}
	h.blocking(c, "put", req, rid, func(ctx context.Context) (gin.H, error) {
		if err := h.orch.Put(ctx, req.Actor, rid, payload, req.Priority); err != nil {
			return nil, err
		}
		return gin.H{"priority": req.Priority}, nil
	})
}

// Get dequeues the next message
func (h *Handlers) Get(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	h.blocking(c, "get", req, rid, func(ctx context.Context) (gin.H, error) {
		msg, err := h.orch.Get(ctx, req.Actor, rid)
		if err != nil {
			return nil, err
		}
		return gin.H{"message": gin.H{
			"payload":     req.encode(msg.Payload),
			"priority":    msg.Priority,
			"seq":         msg.Seq,
			"sender":      msg.Sender,
			"enqueued_at": msg.EnqueuedAt,
		}}, nil
	})
}

// Acquire takes a lock or shared memory segment
func (h *Handlers) Acquire(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.blocking(c, "acquire", req, rid, func(ctx context.Context) (gin.H, error) {
		if err := h.orch.Acquire(ctx, req.Actor, rid, mode); err != nil {
			return nil, err
		}
		return gin.H{"actor": req.Actor, "resource": rid}, nil
	})
}

// Release releases a lock or shared memory segment
func (h *Handlers) Release(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	if err := h.orch.Release(req.Actor, rid); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"actor": req.Actor, "resource": rid})
}

// WriteBytes writes into a shared memory segment
func (h *Handlers) WriteBytes(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	data, err := req.bytes()
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.orch.WriteBytes(req.Actor, rid, req.Offset, data); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"written": len(data), "offset": req.Offset})
}

// ReadBytes reads from a shared memory segment
func (h *Handlers) ReadBytes(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	data, gen, err := h.orch.ReadBytes(req.Actor, rid, req.Offset, req.Size)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"data": req.encode(data), "size": len(data), "generation": gen})
}

// Attach registers the actor as a pipe or queue endpoint
func (h *Handlers) Attach(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	role := req.Role
	if role == "" {
		role = req.Mode
	}
	mode, err := ipc.ParseMode(role)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.orch.Attach(req.Actor, rid, mode); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"actor": req.Actor, "resource": rid, "role": mode})
}

// Detach removes the actor's pipe or queue endpoint
func (h *Handlers) Detach(c *gin.Context) {
	req, rid, ok := h.bind(c)
	if !ok {
		return
	}
	if err := h.orch.Detach(req.Actor, rid); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"actor": req.Actor, "resource": rid})
}
