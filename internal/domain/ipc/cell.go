package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// waiter is one parked call. Every field except done is written under the
// owning cell's mu; done is closed after the outcome is recorded.
type waiter struct {
	actor    *Actor
	intent   Mode
	amount   int
	data     []byte  // pipe write payload
	out      []byte  // pipe read result
	msg      Message // queue put payload or get result
	since    time.Time
	done     chan struct{}
	finished bool
	err      error
}

type holder struct {
	actor  id.ActorID
	access Mode
	since  time.Time
}

// cell is the guarded state shared by every resource kind: identity,
// holders, the FIFO wait-list and the hand-off machinery.
type cell struct {
	id        id.ResourceID
	name      string
	kind      Kind
	cfg       Config
	rt        *Runtime
	createdAt time.Time

	mu           sync.Mutex
	closed       bool      // Protected by mu
	holders      []holder  // Protected by mu
	waiters      []*waiter // Protected by mu; arrival order
	lastActivity time.Time // Protected by mu
	ops          uint64    // Protected by mu

	level    func() int64 // kind-specific level; mu held
	dispatch func()       // grants whatever the current state allows; mu held
}

func newCell(rt *Runtime, rid id.ResourceID, kind Kind, name string, cfg Config) *cell {
	now := time.Now()
	return &cell{
		id:           rid,
		name:         name,
		kind:         kind,
		cfg:          cfg,
		rt:           rt,
		createdAt:    now,
		lastActivity: now,
		level:        func() int64 { return 0 },
		dispatch:     func() {},
	}
}

// ID returns the resource ID
func (c *cell) ID() id.ResourceID { return c.id }

// Name returns the display name
func (c *cell) Name() string { return c.name }

// Kind returns the resource kind
func (c *cell) Kind() Kind { return c.kind }

// Config returns the creation-time configuration
func (c *cell) Config() Config { return c.cfg }

func (c *cell) lock() {
	c.rt.barrier.RLock()
	c.mu.Lock()
}

func (c *cell) unlock() {
	c.mu.Unlock()
	c.rt.barrier.RUnlock()
}

// announce logs the creation event once the kind hooks are installed
func (c *cell) announce() {
	c.lock()
	c.emit(events.KindCreated, 0, string(c.kind), "")
	c.unlock()
}

func (c *cell) emit(kind events.Kind, actor id.ActorID, detail, reason string) {
	c.lastActivity = time.Now()
	c.rt.log.Append(events.Entry{
		Kind:         kind,
		Actor:        actor,
		Resource:     c.id,
		ResourceKind: string(c.kind),
		Detail:       detail,
		Level:        c.level(),
		Reason:       reason,
	})
}

// admit rejects operations on closed resources and from actors that are
// terminated or parked in another call. It runs before any state changes.
func (c *cell) admit(a *Actor) error {
	if c.closed {
		return fmt.Errorf("%w: %s %q", ErrClosed, c.kind, c.name)
	}
	if a == nil {
		return fmt.Errorf("%w: nil actor", ErrInvalidArgument)
	}
	if a.Terminated() {
		return fmt.Errorf("%w: actor %s terminated", ErrCanceled, a.ID)
	}
	if on := a.BlockedOn(); on != 0 {
		return fmt.Errorf("%w: actor %s is blocked on %s", ErrInvalidArgument, a.ID, on)
	}
	c.ops++
	return nil
}

func (c *cell) holderIndex(actor id.ActorID) int {
	for i, h := range c.holders {
		if h.actor == actor {
			return i
		}
	}
	return -1
}

// grant adds actor to the holders or widens its access
func (c *cell) grant(actor id.ActorID, access Mode) {
	if i := c.holderIndex(actor); i >= 0 {
		if c.holders[i].access.Has(access) {
			return
		}
		c.holders[i].access |= access
		c.emit(events.KindAcquired, actor, c.holders[i].access.String(), "")
		return
	}
	c.holders = append(c.holders, holder{actor: actor, access: access, since: time.Now()})
	c.emit(events.KindAcquired, actor, access.String(), "")
}

// revoke removes actor from the holders
func (c *cell) revoke(actor id.ActorID, reason string) bool {
	i := c.holderIndex(actor)
	if i < 0 {
		return false
	}
	access := c.holders[i].access
	c.holders = append(c.holders[:i], c.holders[i+1:]...)
	c.emit(events.KindReleased, actor, access.String(), reason)
	return true
}

// enqueue parks a at the tail of the wait-list
func (c *cell) enqueue(a *Actor, intent Mode, amount int) (*waiter, error) {
	if !a.park(c.id) {
		return nil, fmt.Errorf("%w: actor %s is already blocked", ErrInvalidArgument, a.ID)
	}
	w := &waiter{
		actor:  a,
		intent: intent,
		amount: amount,
		since:  time.Now(),
		done:   make(chan struct{}),
	}
	c.waiters = append(c.waiters, w)
	c.emit(events.KindBlockedOn, a.ID, intent.String(), "")
	return w, nil
}

// block parks a like enqueue and then attaches it as an endpoint with
// role. A failed park leaves the holders untouched.
func (c *cell) block(a *Actor, intent Mode, amount int, role Mode) (*waiter, error) {
	w, err := c.enqueue(a, intent, amount)
	if err != nil {
		return nil, err
	}
	c.grant(a.ID, role)
	return w, nil
}

// head returns the oldest waiter with the given intent
func (c *cell) head(intent Mode) *waiter {
	for _, w := range c.waiters {
		if w.intent == intent {
			return w
		}
	}
	return nil
}

func (c *cell) queued(intent Mode) bool {
	return c.head(intent) != nil
}

func (c *cell) waiting(actor id.ActorID) bool {
	for _, w := range c.waiters {
		if w.actor.ID == actor {
			return true
		}
	}
	return false
}

// finish removes w from the wait-list, records its outcome and wakes it
func (c *cell) finish(w *waiter, err error) {
	for i, other := range c.waiters {
		if other == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			break
		}
	}
	w.finished = true
	w.err = err
	w.actor.unpark(c.id)
	c.emit(events.KindUnblocked, w.actor.ID, w.intent.String(), unblockReason(err))
	close(w.done)
}

func unblockReason(err error) string {
	switch {
	case err == nil:
		return events.ReasonGranted
	case errors.Is(err, ErrClosed):
		return events.ReasonClosed
	case errors.Is(err, ErrTimeout):
		return events.ReasonTimeout
	}
	return events.ReasonCanceled
}

// wait suspends the caller until w is granted, failed, timed out or
// canceled. Called without any lock held.
func (c *cell) wait(ctx context.Context, w *waiter) error {
	if c.cfg.Timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
	}

	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return c.abandon(w, contextError(ctx))
	case <-w.actor.Done():
		return c.abandon(w, fmt.Errorf("%w: actor %s terminated", ErrCanceled, w.actor.ID))
	}
}

// abandon withdraws w unless a grant won the race
func (c *cell) abandon(w *waiter, err error) error {
	c.lock()
	defer c.unlock()

	if w.finished {
		return w.err
	}
	c.finish(w, err)
	c.dispatch()
	return err
}

// CancelWaits removes every wait of actor; the blocked calls return ErrCanceled
func (c *cell) CancelWaits(actor id.ActorID) int {
	c.lock()
	defer c.unlock()

	n := 0
	for _, w := range append([]*waiter(nil), c.waiters...) {
		if w.actor.ID == actor {
			c.finish(w, fmt.Errorf("%w: actor %s terminated", ErrCanceled, actor))
			n++
		}
	}
	if n > 0 {
		c.dispatch()
	}
	return n
}

// ReleaseAll drops actor's holding or endpoint and lets waiters proceed
func (c *cell) ReleaseAll(actor id.ActorID) {
	c.lock()
	defer c.unlock()

	if c.revoke(actor, events.ReasonTerminated) {
		c.dispatch()
	}
}

// shutdown fails every waiter with ErrClosed and drops every holder
func (c *cell) shutdown(reason string) {
	c.closed = true
	for len(c.waiters) > 0 {
		c.finish(c.waiters[0], fmt.Errorf("%w: %s %q", ErrClosed, c.kind, c.name))
	}
	for len(c.holders) > 0 {
		c.revoke(c.holders[0].actor, reason)
	}
}

// Destroy closes the resource for good
func (c *cell) Destroy(force bool) error {
	c.lock()
	defer c.unlock()

	if !force && (len(c.holders) > 0 || len(c.waiters) > 0) {
		return fmt.Errorf("%w: %s %q has %d holders and %d waiters",
			ErrResourceBusy, c.kind, c.name, len(c.holders), len(c.waiters))
	}
	if !c.closed {
		c.shutdown(events.ReasonClosed)
	}
	c.emit(events.KindDestroyed, 0, string(c.kind), "")
	return nil
}

// close implements Close for pipes and queues
func (c *cell) close() error {
	c.lock()
	defer c.unlock()

	if c.closed {
		return fmt.Errorf("%w: %s %q", ErrClosed, c.kind, c.name)
	}
	c.shutdown(events.ReasonClosed)
	c.emit(events.KindClosed, 0, string(c.kind), "")
	return nil
}

// baseState copies the shared part of the state; mu held.
// Holders exclude endpoints currently parked on this same resource so an
// actor never appears as both holder and waiter.
func (c *cell) baseState() ResourceState {
	s := ResourceState{
		ID:           c.id,
		Name:         c.name,
		Kind:         c.kind,
		Config:       c.cfg,
		Closed:       c.closed,
		Holders:      make([]HolderState, 0, len(c.holders)),
		Waiters:      make([]WaiterState, 0, len(c.waiters)),
		Level:        c.level(),
		CreatedAt:    c.createdAt,
		LastActivity: c.lastActivity,
		Operations:   c.ops,
	}
	for _, h := range c.holders {
		if c.waiting(h.actor) {
			continue
		}
		s.Holders = append(s.Holders, HolderState{Actor: h.actor, Access: h.access, Since: h.since})
	}
	for _, w := range c.waiters {
		s.Waiters = append(s.Waiters, WaiterState{Actor: w.actor.ID, Intent: w.intent, Amount: w.amount, Since: w.since})
	}
	return s
}
