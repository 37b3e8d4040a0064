package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/logging"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// resolve looks up both IDs and asserts the resource's concrete kind
func resolve[T ipc.Resource](o *Orchestrator, actorID id.ActorID, rid id.ResourceID, want ipc.Kind) (*ipc.Actor, T, error) {
	var zero T
	a, err := o.actor(actorID)
	if err != nil {
		return nil, zero, err
	}
	r, err := o.resource(rid)
	if err != nil {
		return nil, zero, err
	}
	typed, ok := r.(T)
	if !ok {
		return nil, zero, fmt.Errorf("%w: resource %s is a %s, not a %s", ipc.ErrInvalidArgument, rid, r.Kind(), want)
	}
	return a, typed, nil
}

// observe records the outcome of one operation
func (o *Orchestrator) observe(kind ipc.Kind, op string, actorID id.ActorID, rid id.ResourceID, start time.Time, err error) error {
	result := "ok"
	if err != nil {
		result = ipc.ErrorKind(err)
		o.logger.Debug("Operation failed",
			zap.String("kind", string(kind)),
			zap.String("op", op),
			logging.Actor(actorID),
			logging.Resource(rid),
			zap.Error(err))
	}
	o.metrics.RecordOperation(string(kind), op, result, time.Since(start))
	return err
}

// Write writes data into a pipe
func (o *Orchestrator) Write(ctx context.Context, actorID id.ActorID, rid id.ResourceID, data []byte) error {
	start := time.Now()
	a, p, err := resolve[*ipc.Pipe](o, actorID, rid, ipc.KindPipe)
	if err == nil {
		err = p.Write(ctx, a, data)
	}
	return o.observe(ipc.KindPipe, "write", actorID, rid, start, err)
}

// Read reads up to n bytes from a pipe, waiting while it is empty
func (o *Orchestrator) Read(ctx context.Context, actorID id.ActorID, rid id.ResourceID, n int) ([]byte, error) {
	start := time.Now()
	a, p, err := resolve[*ipc.Pipe](o, actorID, rid, ipc.KindPipe)
	var out []byte
	if err == nil {
		out, err = p.Read(ctx, a, n)
	}
	return out, o.observe(ipc.KindPipe, "read", actorID, rid, start, err)
}

// Put enqueues a message
func (o *Orchestrator) Put(ctx context.Context, actorID id.ActorID, rid id.ResourceID, payload []byte, priority int) error {
	start := time.Now()
	a, q, err := resolve[*ipc.Queue](o, actorID, rid, ipc.KindQueue)
	if err == nil {
		err = q.Put(ctx, a, ipc.Message{Payload: payload, Priority: priority})
	}
	return o.observe(ipc.KindQueue, "put", actorID, rid, start, err)
}

// Get dequeues the next message
func (o *Orchestrator) Get(ctx context.Context, actorID id.ActorID, rid id.ResourceID) (ipc.Message, error) {
	start := time.Now()
	a, q, err := resolve[*ipc.Queue](o, actorID, rid, ipc.KindQueue)
	var msg ipc.Message
	if err == nil {
		msg, err = q.Get(ctx, a)
	}
	return msg, o.observe(ipc.KindQueue, "get", actorID, rid, start, err)
}

// Size returns a queue's length
func (o *Orchestrator) Size(rid id.ResourceID) (int, error) {
	r, err := o.resource(rid)
	if err != nil {
		return 0, err
	}
	q, ok := r.(*ipc.Queue)
	if !ok {
		return 0, fmt.Errorf("%w: resource %s is a %s, not a queue", ipc.ErrInvalidArgument, rid, r.Kind())
	}
	return q.Size(), nil
}

// Acquire takes a lock or a shared memory segment. Locks accept only Write
// (or an unset mode).
func (o *Orchestrator) Acquire(ctx context.Context, actorID id.ActorID, rid id.ResourceID, mode ipc.Mode) error {
	start := time.Now()
	r, err := o.resource(rid)
	if err != nil {
		return o.observe("", "acquire", actorID, rid, start, err)
	}
	switch r.Kind() {
	case ipc.KindLock:
		a, l, err := resolve[*ipc.Lock](o, actorID, rid, ipc.KindLock)
		if err == nil && mode != 0 && mode != ipc.ModeWrite {
			err = fmt.Errorf("%w: locks are exclusive, got mode %s", ipc.ErrInvalidArgument, mode)
		}
		if err == nil {
			err = l.Acquire(ctx, a)
		}
		return o.observe(ipc.KindLock, "acquire", actorID, rid, start, err)
	case ipc.KindSharedMemory:
		a, s, err := resolve[*ipc.SharedMemory](o, actorID, rid, ipc.KindSharedMemory)
		if err == nil {
			err = s.Acquire(ctx, a, mode)
		}
		return o.observe(ipc.KindSharedMemory, "acquire", actorID, rid, start, err)
	}
	err = fmt.Errorf("%w: resource %s is a %s and cannot be acquired", ipc.ErrInvalidArgument, rid, r.Kind())
	return o.observe(r.Kind(), "acquire", actorID, rid, start, err)
}

// Release releases a lock or a shared memory segment
func (o *Orchestrator) Release(actorID id.ActorID, rid id.ResourceID) error {
	start := time.Now()
	r, err := o.resource(rid)
	if err != nil {
		return o.observe("", "release", actorID, rid, start, err)
	}
	a, err := o.actor(actorID)
	if err == nil {
		switch typed := r.(type) {
		case *ipc.Lock:
			err = typed.Release(a)
		case *ipc.SharedMemory:
			err = typed.Release(a)
		default:
			err = fmt.Errorf("%w: resource %s is a %s and cannot be released", ipc.ErrInvalidArgument, rid, r.Kind())
		}
	}
	return o.observe(r.Kind(), "release", actorID, rid, start, err)
}

// WriteBytes writes into a shared memory segment held for Write
func (o *Orchestrator) WriteBytes(actorID id.ActorID, rid id.ResourceID, offset int, data []byte) error {
	start := time.Now()
	a, s, err := resolve[*ipc.SharedMemory](o, actorID, rid, ipc.KindSharedMemory)
	if err == nil {
		err = s.WriteBytes(a, offset, data)
	}
	return o.observe(ipc.KindSharedMemory, "write_bytes", actorID, rid, start, err)
}

// ReadBytes reads from a shared memory segment held in any mode
func (o *Orchestrator) ReadBytes(actorID id.ActorID, rid id.ResourceID, offset, n int) ([]byte, uint64, error) {
	start := time.Now()
	a, s, err := resolve[*ipc.SharedMemory](o, actorID, rid, ipc.KindSharedMemory)
	var (
		out []byte
		gen uint64
	)
	if err == nil {
		out, gen, err = s.ReadBytes(a, offset, n)
	}
	return out, gen, o.observe(ipc.KindSharedMemory, "read_bytes", actorID, rid, start, err)
}

// endpoint is implemented by pipes and queues
type endpoint interface {
	ipc.Resource
	Attach(a *ipc.Actor, role ipc.Mode) error
	Detach(a *ipc.Actor) error
	Close() error
}

func (o *Orchestrator) endpoint(rid id.ResourceID) (endpoint, error) {
	r, err := o.resource(rid)
	if err != nil {
		return nil, err
	}
	e, ok := r.(endpoint)
	if !ok {
		return nil, fmt.Errorf("%w: resource %s is a %s and has no endpoints", ipc.ErrInvalidArgument, rid, r.Kind())
	}
	return e, nil
}

// Attach registers an actor as a pipe or queue endpoint
func (o *Orchestrator) Attach(actorID id.ActorID, rid id.ResourceID, role ipc.Mode) error {
	start := time.Now()
	e, err := o.endpoint(rid)
	if err != nil {
		return o.observe("", "attach", actorID, rid, start, err)
	}
	a, err := o.actor(actorID)
	if err == nil {
		err = e.Attach(a, role)
	}
	return o.observe(e.Kind(), "attach", actorID, rid, start, err)
}

// Detach removes an actor's pipe or queue endpoint
func (o *Orchestrator) Detach(actorID id.ActorID, rid id.ResourceID) error {
	start := time.Now()
	e, err := o.endpoint(rid)
	if err != nil {
		return o.observe("", "detach", actorID, rid, start, err)
	}
	a, err := o.actor(actorID)
	if err == nil {
		err = e.Detach(a)
	}
	return o.observe(e.Kind(), "detach", actorID, rid, start, err)
}

// Close closes a pipe or queue
func (o *Orchestrator) Close(rid id.ResourceID) error {
	start := time.Now()
	e, err := o.endpoint(rid)
	if err != nil {
		return o.observe("", "close", 0, rid, start, err)
	}
	return o.observe(e.Kind(), "close", 0, rid, start, e.Close())
}
