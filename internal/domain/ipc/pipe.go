package ipc

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Pipe is a bounded byte stream.
//
// Writes are atomic: a write of n bytes waits until n bytes of space are
// free and then appends all of them. A read of n bytes waits only while
// the pipe is empty and then takes up to n of the buffered bytes. Waiting
// writers and waiting readers are served in arrival order per direction.
type Pipe struct {
	*cell

	buf []byte // Protected by mu
}

// NewPipe creates an empty pipe with cfg.Capacity bytes of buffer
func NewPipe(rt *Runtime, rid id.ResourceID, name string, cfg Config) (*Pipe, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: pipe capacity must be positive, got %d", ErrInvalidArgument, cfg.Capacity)
	}
	p := &Pipe{
		cell: newCell(rt, rid, KindPipe, name, cfg),
		buf:  make([]byte, 0, cfg.Capacity),
	}
	p.level = func() int64 { return int64(len(p.buf)) }
	p.dispatch = p.dispatchLocked
	p.announce()
	return p, nil
}

// Capacity returns the buffer size in bytes
func (p *Pipe) Capacity() int {
	return p.cfg.Capacity
}

// Fill returns the number of buffered bytes
func (p *Pipe) Fill() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Attach registers a as an endpoint. Write and Read attach implicitly.
func (p *Pipe) Attach(a *Actor, role Mode) error {
	if role != ModeRead && role != ModeWrite && role != ModeReadWrite {
		return fmt.Errorf("%w: pipe endpoint role %d", ErrInvalidArgument, role)
	}
	p.lock()
	defer p.unlock()

	if err := p.admit(a); err != nil {
		return err
	}
	p.grant(a.ID, role)
	return nil
}

// Detach removes a's endpoint
func (p *Pipe) Detach(a *Actor) error {
	p.lock()
	defer p.unlock()

	if err := p.admit(a); err != nil {
		return err
	}
	if !p.revoke(a.ID, "") {
		return fmt.Errorf("%w: actor %s is not attached to pipe %q", ErrAccessViolation, a.ID, p.name)
	}
	return nil
}

// Write appends data, waiting for space when the pipe is too full
func (p *Pipe) Write(ctx context.Context, a *Actor, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty write", ErrInvalidArgument)
	}
	if len(data) > p.cfg.Capacity {
		return fmt.Errorf("%w: write of %d bytes exceeds pipe capacity %d", ErrInvalidArgument, len(data), p.cfg.Capacity)
	}

	p.lock()
	if err := p.admit(a); err != nil {
		p.unlock()
		return err
	}
	if !p.queued(ModeWrite) && len(p.buf)+len(data) <= p.cfg.Capacity {
		p.grant(a.ID, ModeWrite)
		p.buf = append(p.buf, data...)
		p.emit(events.KindMutated, a.ID, fmt.Sprintf("write %d", len(data)), "")
		p.dispatch()
		p.unlock()
		return nil
	}

	w, err := p.block(a, ModeWrite, len(data), ModeWrite)
	if err != nil {
		p.unlock()
		return err
	}
	w.data = append([]byte(nil), data...)
	p.unlock()

	return p.wait(ctx, w)
}

// Read removes up to n bytes, waiting while the pipe is empty
func (p *Pipe) Read(ctx context.Context, a *Actor, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: read size must be positive, got %d", ErrInvalidArgument, n)
	}
	if n > p.cfg.Capacity {
		return nil, fmt.Errorf("%w: read of %d bytes exceeds pipe capacity %d", ErrInvalidArgument, n, p.cfg.Capacity)
	}

	p.lock()
	if err := p.admit(a); err != nil {
		p.unlock()
		return nil, err
	}
	if !p.queued(ModeRead) && len(p.buf) > 0 {
		p.grant(a.ID, ModeRead)
		out := p.take(n)
		p.emit(events.KindMutated, a.ID, fmt.Sprintf("read %d", len(out)), "")
		p.dispatch()
		p.unlock()
		return out, nil
	}

	w, err := p.block(a, ModeRead, n, ModeRead)
	if err != nil {
		p.unlock()
		return nil, err
	}
	p.unlock()

	if err := p.wait(ctx, w); err != nil {
		return nil, err
	}
	return w.out, nil
}

// Close wakes every waiter with ErrClosed and rejects further operations
func (p *Pipe) Close() error {
	return p.close()
}

// State copies the pipe's state
func (p *Pipe) State() ResourceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state()
}

func (p *Pipe) state() ResourceState {
	s := p.baseState()
	s.Capacity = p.cfg.Capacity
	s.Fill = len(p.buf)
	return s
}

// take removes min(n, fill) bytes from the front of the buffer
func (p *Pipe) take(n int) []byte {
	n = min(n, len(p.buf))
	out := make([]byte, n)
	copy(out, p.buf)
	p.buf = append(p.buf[:0], p.buf[n:]...)
	return out
}

func (p *Pipe) dispatchLocked() {
	for {
		progressed := false
		if w := p.head(ModeWrite); w != nil && len(p.buf)+len(w.data) <= p.cfg.Capacity {
			p.buf = append(p.buf, w.data...)
			p.finish(w, nil)
			progressed = true
		}
		if w := p.head(ModeRead); w != nil && len(p.buf) > 0 {
			w.out = p.take(w.amount)
			p.finish(w, nil)
			progressed = true
		}
		if !progressed {
			return
		}
	}
}
