package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/scenario"
)

// RunScenarioRequest is the optional body of POST /scenarios/:name
type RunScenarioRequest struct {
	Params scenario.Params `json:"params"`
	Keep   bool            `json:"keep"`
	Settle string          `json:"settle"`
}

// ListScenarios returns the built-in and loaded scenario names
func (h *Handlers) ListScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"scenarios": h.runner.Names(),
		"builtin":   scenario.BuiltinNames(),
	})
}

// RunScenario plays a scenario to completion, runs detection and returns
// the result
func (h *Handlers) RunScenario(c *gin.Context) {
	var req RunScenarioRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	settle, err := parseTimeout(req.Settle)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.runner.Run(c.Request.Context(), c.Param("name"), req.Params,
		scenario.RunOptions{Settle: settle, Keep: req.Keep})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"deadlocked": result.Deadlocked(),
		"result":     result,
	})
}

// Reset clears all actors, resources, reports and the event log
func (h *Handlers) Reset(c *gin.Context) {
	h.orch.Reset()
	h.logger.Info("Simulation reset")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
