package orchestrator

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/deadlock"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// ActorState is derived from the resources' wait-lists
type ActorState string

const (
	StateRunning    ActorState = "running"
	StateBlocked    ActorState = "blocked"
	StateTerminated ActorState = "terminated"
)

// ActorInfo is the query view of an actor
type ActorInfo struct {
	ID        id.ActorID      `json:"id"`
	Name      string          `json:"name"`
	State     ActorState      `json:"state"`
	BlockedOn id.ResourceID   `json:"blocked_on,omitempty"`
	Intent    ipc.Mode        `json:"intent,omitempty"`
	Holding   []id.ResourceID `json:"holding,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Snapshot copies every resource's state at one point of the logical clock
func (o *Orchestrator) Snapshot() ipc.Snapshot {
	o.mu.RLock()
	resources := o.resourcesLocked()
	o.mu.RUnlock()
	return o.rt.Snapshot(resources)
}

// Resource returns one resource's state
func (o *Orchestrator) Resource(rid id.ResourceID) (ipc.ResourceState, error) {
	r, err := o.resource(rid)
	if err != nil {
		return ipc.ResourceState{}, err
	}
	return r.State(), nil
}

// Resources returns every resource's state, ascending by ID
func (o *Orchestrator) Resources() []ipc.ResourceState {
	return o.Snapshot().Resources
}

// Actor returns one actor with its derived state
func (o *Orchestrator) Actor(actorID id.ActorID) (ActorInfo, error) {
	a, err := o.actor(actorID)
	if err != nil {
		return ActorInfo{}, err
	}
	return describe(a, o.Snapshot()), nil
}

// Actors returns every actor, ascending by ID, derived from one snapshot
func (o *Orchestrator) Actors() []ActorInfo {
	o.mu.RLock()
	actors := make([]*ipc.Actor, 0, len(o.actors))
	for _, a := range o.actors {
		actors = append(actors, a)
	}
	o.mu.RUnlock()

	snap := o.Snapshot()
	out := make([]ActorInfo, 0, len(actors))
	for _, a := range actors {
		out = append(out, describe(a, snap))
	}
	slices.SortFunc(out, func(x, y ActorInfo) int { return cmp.Compare(x.ID, y.ID) })
	return out
}

func describe(a *ipc.Actor, snap ipc.Snapshot) ActorInfo {
	info := ActorInfo{ID: a.ID, Name: a.Name, State: StateRunning, CreatedAt: a.CreatedAt}
	if a.Terminated() {
		info.State = StateTerminated
		return info
	}
	for _, rs := range snap.Resources {
		if rs.Holds(a.ID) {
			info.Holding = append(info.Holding, rs.ID)
		}
		for _, w := range rs.Waiters {
			if w.Actor == a.ID {
				info.State = StateBlocked
				info.BlockedOn = rs.ID
				info.Intent = w.Intent
			}
		}
	}
	return info
}

// Deadlocks returns the last n reports, newest first. n <= 0 returns all
// retained reports.
func (o *Orchestrator) Deadlocks(n int) []deadlock.Report {
	return o.detector.Reports(n)
}

// Graph returns the waits-for graph of the current snapshot
func (o *Orchestrator) Graph() *deadlock.Graph {
	return deadlock.Build(o.Snapshot())
}

// WaitStats summarizes how long the currently parked actors have waited
type WaitStats struct {
	Waiting       int     `json:"waiting"`
	MeanSeconds   float64 `json:"mean_seconds"`
	StdDevSeconds float64 `json:"stddev_seconds"`
	MaxSeconds    float64 `json:"max_seconds"`
}

// Stats is a point-in-time summary of the simulation
type Stats struct {
	AsOf      uint64           `json:"as_of"`
	Actors    int              `json:"actors"`
	Blocked   int              `json:"blocked"`
	Resources map[ipc.Kind]int `json:"resources"`
	Waits     WaitStats        `json:"waits"`
	Deadlocks int              `json:"deadlocks"`
	Events    int              `json:"events"`
}

// Stats summarizes the current snapshot
func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	live := o.liveActorsLocked()
	o.mu.RUnlock()

	snap := o.Snapshot()
	s := Stats{
		AsOf:      snap.AsOf,
		Actors:    live,
		Resources: make(map[ipc.Kind]int, len(ipc.Kinds)),
		Deadlocks: len(o.detector.Reports(0)),
		Events:    o.log.Len(),
	}

	blocked := make(map[id.ActorID]bool)
	var waits []float64
	for _, rs := range snap.Resources {
		s.Resources[rs.Kind]++
		for _, w := range rs.Waiters {
			blocked[w.Actor] = true
			waits = append(waits, snap.TakenAt.Sub(w.Since).Seconds())
		}
	}
	s.Blocked = len(blocked)
	s.Waits = summarize(waits)
	return s
}

func summarize(waits []float64) WaitStats {
	ws := WaitStats{Waiting: len(waits)}
	if len(waits) == 0 {
		return ws
	}
	if len(waits) == 1 {
		ws.MeanSeconds = waits[0]
	} else {
		ws.MeanSeconds, ws.StdDevSeconds = stat.MeanStdDev(waits, nil)
	}
	ws.MaxSeconds = slices.Max(waits)
	return ws
}

// String renders an actor for logs and the CLI
func (a ActorInfo) String() string {
	if a.State == StateBlocked {
		return fmt.Sprintf("%s (%s) blocked on %s", a.ID, a.Name, a.BlockedOn)
	}
	return fmt.Sprintf("%s (%s) %s", a.ID, a.Name, a.State)
}
