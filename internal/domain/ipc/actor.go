package ipc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Actor is a simulated thread or process.
//
// Resources keep a back-reference to the actor only while it sits in their
// wait-list. The actor's Running/Blocked state is derived from those
// wait-lists; the parked field below keeps an actor that is blocked in one
// call from issuing any other.
type Actor struct {
	ID        id.ActorID
	Name      string
	CreatedAt time.Time

	parked atomic.Uint64 // resource the actor is parked on, 0 if none
	done   chan struct{}
	once   sync.Once
}

// NewActor creates a running actor
func NewActor(actorID id.ActorID, name string) *Actor {
	if name == "" {
		name = actorID.String()
	}
	return &Actor{
		ID:        actorID,
		Name:      name,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Terminate marks the actor terminated. Safe to call more than once.
func (a *Actor) Terminate() {
	a.once.Do(func() { close(a.done) })
}

// Done is closed once the actor has been terminated
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// Terminated reports whether Terminate has been called
func (a *Actor) Terminated() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *Actor) park(r id.ResourceID) bool {
	return a.parked.CompareAndSwap(0, uint64(r))
}

// unpark clears the parking on r. It runs when the wait on r finishes,
// before the blocked call returns.
func (a *Actor) unpark(r id.ResourceID) {
	a.parked.CompareAndSwap(uint64(r), 0)
}

// BlockedOn returns the resource a is parked on, 0 if it is running
func (a *Actor) BlockedOn() id.ResourceID {
	return id.ResourceID(a.parked.Load())
}
