package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/utils"
)

// CreateActorRequest is the body of POST /actors
type CreateActorRequest struct {
	Name string `json:"name"`
}

// CreateActor registers a new actor
func (h *Handlers) CreateActor(c *gin.Context) {
	var req CreateActorRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	if err := utils.ValidateName(req.Name, "name"); err != nil {
		h.badRequest(c, err)
		return
	}
	actor := h.orch.CreateActor(req.Name)
	c.JSON(http.StatusCreated, gin.H{"success": true, "actor": actor})
}

// ListActors returns every actor with its derived state
func (h *Handlers) ListActors(c *gin.Context) {
	actors := h.orch.Actors()
	c.JSON(http.StatusOK, gin.H{"success": true, "actors": actors, "count": len(actors)})
}

// GetActor returns one actor
func (h *Handlers) GetActor(c *gin.Context) {
	actorID, err := actorParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	actor, err := h.orch.Actor(actorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "actor": actor})
}

// DestroyActor terminates an actor, canceling its waits and releasing
// everything it holds
func (h *Handlers) DestroyActor(c *gin.Context) {
	actorID, err := actorParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.orch.DestroyActor(actorID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "actor": actorID})
}

// CreateResourceRequest is the body of POST /resources
type CreateResourceRequest struct {
	Kind             string `json:"kind" binding:"required"`
	Name             string `json:"name"`
	Capacity         int    `json:"capacity"`
	Size             int    `json:"size"`
	Mode             string `json:"mode"`
	PriorityOrdering bool   `json:"priority_ordering"`
	ExclusiveReads   bool   `json:"exclusive_reads"`
	Timeout          string `json:"timeout"`
}

func (r CreateResourceRequest) config() (ipc.Kind, ipc.Config, error) {
	kind, err := ipc.ParseKind(r.Kind)
	if err != nil {
		return "", ipc.Config{}, err
	}
	cfg := ipc.Config{
		Capacity:         r.Capacity,
		Size:             r.Size,
		PriorityOrdering: r.PriorityOrdering,
		ExclusiveReads:   r.ExclusiveReads,
	}
	if r.Mode != "" {
		if cfg.Mode, err = ipc.ParseMode(r.Mode); err != nil {
			return "", ipc.Config{}, err
		}
	}
	if cfg.Timeout, err = parseTimeout(r.Timeout); err != nil {
		return "", ipc.Config{}, err
	}
	return kind, cfg, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, invalid(err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: negative duration %s", ipc.ErrInvalidArgument, d)
	}
	return d, nil
}

// CreateResource creates a pipe, queue, shared memory segment or lock
func (h *Handlers) CreateResource(c *gin.Context) {
	var req CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := utils.ValidateName(req.Name, "name"); err != nil {
		h.badRequest(c, err)
		return
	}
	kind, cfg, err := req.config()
	if err != nil {
		h.fail(c, err)
		return
	}
	state, err := h.orch.CreateResource(kind, req.Name, cfg)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "resource": state})
}

// ListResources returns every resource, optionally filtered by ?kind=
func (h *Handlers) ListResources(c *gin.Context) {
	resources := h.orch.Resources()
	if k := c.Query("kind"); k != "" {
		kind, err := ipc.ParseKind(k)
		if err != nil {
			h.fail(c, err)
			return
		}
		filtered := resources[:0]
		for _, r := range resources {
			if r.Kind == kind {
				filtered = append(filtered, r)
			}
		}
		resources = filtered
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resources": resources, "count": len(resources)})
}

// GetResource returns one resource's state
func (h *Handlers) GetResource(c *gin.Context) {
	rid, err := resourceParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	state, err := h.orch.Resource(rid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resource": state})
}

// DestroyResource removes a resource; ?force=true evicts holders and waiters
func (h *Handlers) DestroyResource(c *gin.Context) {
	rid, err := resourceParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	force := c.Query("force") == "true"
	if err := h.orch.DestroyResource(rid, force); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resource": rid, "force": force})
}

// Size returns a queue's length
func (h *Handlers) Size(c *gin.Context) {
	rid, err := resourceParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	n, err := h.orch.Size(rid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resource": rid, "size": n})
}

// Close closes a pipe or queue
func (h *Handlers) Close(c *gin.Context) {
	rid, err := resourceParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.orch.Close(rid); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resource": rid})
}
