package ipc

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// exclusion is the reader/writer admission core shared by Lock and
// SharedMemory. Grants are strictly FIFO: a request behind an incompatible
// head waits even if it could be granted on its own.
type exclusion struct {
	*cell
}

func newExclusion(rt *Runtime, rid id.ResourceID, kind Kind, name string, cfg Config) exclusion {
	x := exclusion{cell: newCell(rt, rid, kind, name, cfg)}
	x.dispatch = x.dispatchLocked
	return x
}

// compatible reports whether mode can be granted alongside the current holders
func (x exclusion) compatible(mode Mode) bool {
	if len(x.holders) == 0 {
		return true
	}
	if mode.Has(ModeWrite) || x.cfg.ExclusiveReads {
		return false
	}
	for _, h := range x.holders {
		if h.access.Has(ModeWrite) {
			return false
		}
	}
	return true
}

func (x exclusion) acquire(ctx context.Context, a *Actor, mode Mode) error {
	x.lock()
	if err := x.admit(a); err != nil {
		x.unlock()
		return err
	}
	if x.holderIndex(a.ID) >= 0 {
		x.unlock()
		return fmt.Errorf("%w: actor %s already holds %s %q", ErrInvalidArgument, a.ID, x.kind, x.name)
	}

	if len(x.waiters) == 0 && x.compatible(mode) {
		x.grant(a.ID, mode)
		x.unlock()
		return nil
	}

	w, err := x.enqueue(a, mode, 0)
	if err != nil {
		x.unlock()
		return err
	}
	x.unlock()

	return x.wait(ctx, w)
}

func (x exclusion) release(a *Actor) error {
	x.lock()
	defer x.unlock()

	if err := x.admit(a); err != nil {
		return err
	}
	if !x.revoke(a.ID, "") {
		return fmt.Errorf("%w: actor %s does not hold %s %q", ErrAccessViolation, a.ID, x.kind, x.name)
	}
	x.dispatch()
	return nil
}

func (x exclusion) dispatchLocked() {
	for len(x.waiters) > 0 {
		w := x.waiters[0]
		if !x.compatible(w.intent) {
			return
		}
		x.finish(w, nil)
		x.grant(w.actor.ID, w.intent)
	}
}

// Lock is a mutex: at most one holder at a time
type Lock struct {
	exclusion
}

// NewLock creates an unheld lock
func NewLock(rt *Runtime, rid id.ResourceID, name string, cfg Config) *Lock {
	cfg.Mode = ModeWrite
	l := &Lock{exclusion: newExclusion(rt, rid, KindLock, name, cfg)}
	l.level = func() int64 { return int64(len(l.holders)) }
	l.announce()
	return l
}

// Acquire takes the lock, waiting in FIFO order while it is held
func (l *Lock) Acquire(ctx context.Context, a *Actor) error {
	return l.acquire(ctx, a, ModeWrite)
}

// Release gives the lock to the next waiter, if any
func (l *Lock) Release(a *Actor) error {
	return l.release(a)
}

// Holder returns the current holder, 0 if the lock is free
func (l *Lock) Holder() id.ActorID {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.holders) == 0 {
		return 0
	}
	return l.holders[0].actor
}

// State copies the lock's state
func (l *Lock) State() ResourceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state()
}

func (l *Lock) state() ResourceState {
	return l.baseState()
}
