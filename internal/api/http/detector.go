package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/export"
)

// RunDetector runs detection once and returns the cycles found
func (h *Handlers) RunDetector(c *gin.Context) {
	reports := h.orch.RunDetectorOnce()
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"deadlocks": reports,
		"count":     len(reports),
	})
}

// ListDeadlocks returns retained reports, newest first
func (h *Handlers) ListDeadlocks(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	reports := h.orch.Deadlocks(limit)
	c.JSON(http.StatusOK, gin.H{"success": true, "deadlocks": reports, "count": len(reports)})
}

// Graph returns the current waits-for graph
func (h *Handlers) Graph(c *gin.Context) {
	graph := h.orch.Graph()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"graph":   graph,
		"actors":  graph.Actors(),
	})
}

// Stats summarizes the simulation, plus request metrics when available
func (h *Handlers) Stats(c *gin.Context) {
	body := gin.H{"success": true, "stats": h.orch.Stats()}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// Snapshot returns a consistent copy of every resource. With ?format= or
// ?compress= it is served as a downloadable document.
func (h *Handlers) Snapshot(c *gin.Context) {
	snap := h.orch.Snapshot()
	if c.Query("format") == "" && c.Query("compress") == "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "snapshot": snap})
		return
	}
	h.download(c, "snapshot", export.Snapshot(snap))
}

// download encodes doc per the format and compress query parameters
func (h *Handlers) download(c *gin.Context, name string, doc any) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		h.fail(c, err)
		return
	}
	compression, err := export.ParseCompression(c.Query("compress"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", export.ContentType(format, compression))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+export.Extension(format, compression)))
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, doc, format, compression); err != nil {
		h.logger.Error("Export failed", zap.String("document", name), zap.Error(err))
		_ = c.Error(err)
	}
}
