package ipc

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// SharedMemory is a fixed-size byte segment guarded by a reader/writer lock.
//
// Every successful WriteBytes bumps the generation counter; ReadBytes
// returns the generation it observed.
type SharedMemory struct {
	exclusion

	data       []byte // Protected by mu
	generation uint64 // Protected by mu
}

// NewSharedMemory creates a zeroed segment of cfg.Size bytes. Capacity is
// accepted as a synonym for Size. A zero Mode permits both read and write.
func NewSharedMemory(rt *Runtime, rid id.ResourceID, name string, cfg Config) (*SharedMemory, error) {
	if cfg.Size <= 0 {
		cfg.Size = cfg.Capacity
	}
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("%w: shared memory size must be positive, got %d", ErrInvalidArgument, cfg.Size)
	}
	if cfg.Mode == 0 {
		cfg.Mode = ModeReadWrite
	}
	s := &SharedMemory{
		exclusion: newExclusion(rt, rid, KindSharedMemory, name, cfg),
		data:      make([]byte, cfg.Size),
	}
	s.level = func() int64 { return int64(s.generation) }
	s.announce()
	return s, nil
}

// Size returns the segment size in bytes
func (s *SharedMemory) Size() int {
	return s.cfg.Size
}

// Generation returns the number of writes applied so far
func (s *SharedMemory) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Acquire takes the segment in Read (shared) or Write (exclusive) mode
func (s *SharedMemory) Acquire(ctx context.Context, a *Actor, mode Mode) error {
	if mode != ModeRead && mode != ModeWrite {
		return fmt.Errorf("%w: shared memory acquire mode must be read or write, got %s", ErrInvalidArgument, mode)
	}
	if !s.cfg.Mode.Allows(mode) {
		return fmt.Errorf("%w: segment %q is %s only", ErrAccessViolation, s.name, s.cfg.Mode)
	}
	return s.acquire(ctx, a, mode)
}

// Release drops a's lock on the segment
func (s *SharedMemory) Release(a *Actor) error {
	return s.release(a)
}

// WriteBytes copies data into the segment at offset. The caller must hold
// the segment in Write mode.
func (s *SharedMemory) WriteBytes(a *Actor, offset int, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty write", ErrInvalidArgument)
	}

	s.lock()
	defer s.unlock()

	if err := s.admit(a); err != nil {
		return err
	}
	if i := s.holderIndex(a.ID); i < 0 || !s.holders[i].access.Has(ModeWrite) {
		return fmt.Errorf("%w: actor %s does not hold segment %q for write", ErrAccessViolation, a.ID, s.name)
	}
	if offset < 0 || offset > len(s.data)-len(data) {
		return fmt.Errorf("%w: write [%d,%d) outside segment of %d bytes", ErrOutOfBounds, offset, offset+len(data), len(s.data))
	}

	copy(s.data[offset:], data)
	s.generation++
	s.emit(events.KindMutated, a.ID, fmt.Sprintf("write [%d,%d)", offset, offset+len(data)), "")
	return nil
}

// ReadBytes copies n bytes from offset along with the generation they
// belong to. The caller must hold the segment in any mode.
func (s *SharedMemory) ReadBytes(a *Actor, offset, n int) ([]byte, uint64, error) {
	if n <= 0 {
		return nil, 0, fmt.Errorf("%w: read size must be positive, got %d", ErrInvalidArgument, n)
	}

	s.lock()
	defer s.unlock()

	if err := s.admit(a); err != nil {
		return nil, 0, err
	}
	if s.holderIndex(a.ID) < 0 {
		return nil, 0, fmt.Errorf("%w: actor %s does not hold segment %q", ErrAccessViolation, a.ID, s.name)
	}
	if offset < 0 || offset > len(s.data)-n {
		return nil, 0, fmt.Errorf("%w: read [%d,%d) outside segment of %d bytes", ErrOutOfBounds, offset, offset+n, len(s.data))
	}

	out := make([]byte, n)
	copy(out, s.data[offset:])
	s.emit(events.KindRead, a.ID, fmt.Sprintf("read [%d,%d)", offset, offset+n), "")
	return out, s.generation, nil
}

// State copies the segment's state
func (s *SharedMemory) State() ResourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

func (s *SharedMemory) state() ResourceState {
	st := s.baseState()
	st.Size = len(s.data)
	st.Generation = s.generation
	return st
}
