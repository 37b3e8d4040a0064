package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/export"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// DefaultEventLimit caps /events when no limit is given
const DefaultEventLimit = 500

type eventQuery struct {
	from     uint64
	limit    int
	kind     events.Kind
	actor    id.ActorID
	resource id.ResourceID
}

func parseEventQuery(c *gin.Context, defLimit int) (eventQuery, error) {
	var q eventQuery
	if s := c.Query("from"); s != "" {
		from, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return q, invalid(err)
		}
		q.from = from
	}
	limit, err := queryInt(c, "limit", defLimit)
	if err != nil {
		return q, err
	}
	q.limit = limit
	q.kind = events.Kind(c.Query("kind"))
	if s := c.Query("actor"); s != "" {
		if q.actor, err = id.ParseActorID(s); err != nil {
			return q, invalid(err)
		}
	}
	if s := c.Query("resource"); s != "" {
		if q.resource, err = id.ParseResourceID(s); err != nil {
			return q, invalid(err)
		}
	}
	return q, nil
}

func (q eventQuery) filtered() bool {
	return q.kind != "" || q.actor != 0 || q.resource != 0
}

func (q eventQuery) match(e events.Entry) bool {
	return (q.kind == "" || e.Kind == q.kind) &&
		(q.actor == 0 || e.Actor == q.actor) &&
		(q.resource == 0 || e.Resource == q.resource)
}

// collect walks the log from q.from and keeps matching entries up to limit
func (h *Handlers) collect(q eventQuery) []events.Entry {
	if !q.filtered() {
		return h.orch.Events(q.from, q.limit)
	}
	var out []events.Entry
	for e := range h.orch.Log().Entries(q.from) {
		if !q.match(e) {
			continue
		}
		out = append(out, e)
		if q.limit > 0 && len(out) == q.limit {
			break
		}
	}
	return out
}

// ListEvents pages through the event log in sequence order
func (h *Handlers) ListEvents(c *gin.Context) {
	q, err := parseEventQuery(c, DefaultEventLimit)
	if err != nil {
		h.fail(c, err)
		return
	}
	entries := h.collect(q)
	next := q.from
	if len(entries) > 0 {
		next = entries[len(entries)-1].Seq + 1
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"events":  entries,
		"count":   len(entries),
		"first":   h.orch.Log().First(),
		"last":    h.orch.Log().Last(),
		"next":    next,
	})
}

// ExportEvents downloads the event log, by default in full
func (h *Handlers) ExportEvents(c *gin.Context) {
	q, err := parseEventQuery(c, 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.download(c, "events", export.Events(h.collect(q)))
}
