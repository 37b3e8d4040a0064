package ipc

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Runtime is shared by every resource of one simulation: the event log all
// of them append to and the snapshot barrier.
//
// Mutations hold the barrier shared for the duration of their critical
// section; Snapshot holds it exclusively. A snapshot therefore never observes
// half of a hand-off between two resources.
type Runtime struct {
	barrier sync.RWMutex
	log     *events.Log
}

// NewRuntime creates a runtime appending to log
func NewRuntime(log *events.Log) *Runtime {
	if log == nil {
		log = events.NewLog(0)
	}
	return &Runtime{log: log}
}

// Log returns the event log
func (rt *Runtime) Log() *events.Log {
	return rt.log
}

// Snapshot copies the state of every given resource at one point of the
// logical clock. AsOf is the sequence number of the last committed event.
func (rt *Runtime) Snapshot(resources []Resource) Snapshot {
	rt.barrier.Lock()
	defer rt.barrier.Unlock()

	snap := Snapshot{
		AsOf:      rt.log.Last(),
		TakenAt:   time.Now(),
		Resources: make([]ResourceState, 0, len(resources)),
	}
	for _, r := range resources {
		snap.Resources = append(snap.Resources, r.state())
	}
	sort.Slice(snap.Resources, func(i, j int) bool {
		return snap.Resources[i].ID < snap.Resources[j].ID
	})
	return snap
}

// Resource is the capability surface shared by every kind. The set of
// implementations is closed: Pipe, Queue, SharedMemory and Lock.
type Resource interface {
	ID() id.ResourceID
	Name() string
	Kind() Kind

	// State copies the resource's state under its lock
	State() ResourceState

	// Destroy closes the resource. Without force it fails with
	// ErrResourceBusy while holders or waiters exist.
	Destroy(force bool) error

	// CancelWaits removes actor from the wait-list; its blocked call
	// returns ErrCanceled. It returns the number of waits removed.
	CancelWaits(actor id.ActorID) int

	// ReleaseAll drops every holding or endpoint of actor, waking waiters
	ReleaseAll(actor id.ActorID)

	state() ResourceState
}

// New creates a resource of the given kind
func New(rt *Runtime, rid id.ResourceID, kind Kind, name string, cfg Config) (Resource, error) {
	if name == "" {
		name = fmt.Sprintf("%s-%d", kind, rid)
	}
	var (
		r   Resource
		err error
	)
	switch kind {
	case KindPipe:
		var p *Pipe
		if p, err = NewPipe(rt, rid, name, cfg); err == nil {
			r = p
		}
	case KindQueue:
		var q *Queue
		if q, err = NewQueue(rt, rid, name, cfg); err == nil {
			r = q
		}
	case KindSharedMemory:
		var s *SharedMemory
		if s, err = NewSharedMemory(rt, rid, name, cfg); err == nil {
			r = s
		}
	case KindLock:
		r = NewLock(rt, rid, name, cfg)
	default:
		err = fmt.Errorf("%w: unknown resource kind %q", ErrInvalidArgument, kind)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}
