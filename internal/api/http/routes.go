package http

import "github.com/gin-gonic/gin"

// Register mounts every control and query route on r. The metrics scrape
// and the event stream are mounted by the server.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.POST("/actors", h.CreateActor)
	r.GET("/actors", h.ListActors)
	r.GET("/actors/:id", h.GetActor)
	r.DELETE("/actors/:id", h.DestroyActor)

	r.POST("/resources", h.CreateResource)
	r.GET("/resources", h.ListResources)
	r.GET("/resources/:id", h.GetResource)
	r.DELETE("/resources/:id", h.DestroyResource)
	r.GET("/resources/:id/size", h.Size)
	r.POST("/resources/:id/attach", h.Attach)
	r.POST("/resources/:id/detach", h.Detach)
	r.POST("/resources/:id/close", h.Close)
	r.POST("/resources/:id/write", h.Write)
	r.POST("/resources/:id/read", h.Read)
	r.POST("/resources/:id/put", h.Put)
	r.POST("/resources/:id/get", h.Get)
	r.POST("/resources/:id/acquire", h.Acquire)
	r.POST("/resources/:id/release", h.Release)
	r.POST("/resources/:id/write-bytes", h.WriteBytes)
	r.POST("/resources/:id/read-bytes", h.ReadBytes)

	r.POST("/detector/run", h.RunDetector)
	r.GET("/deadlocks", h.ListDeadlocks)
	r.GET("/graph", h.Graph)
	r.GET("/stats", h.Stats)
	r.GET("/snapshot", h.Snapshot)

	r.GET("/events", h.ListEvents)
	r.GET("/events/export", h.ExportEvents)

	r.GET("/scenarios", h.ListScenarios)
	r.POST("/scenarios/:name", h.RunScenario)

	r.POST("/reset", h.Reset)
}
