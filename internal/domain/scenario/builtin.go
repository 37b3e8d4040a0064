package scenario

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
)

// Params tune a built-in scenario. Unknown keys are ignored and missing
// keys take the scenario's default.
type Params map[string]int

func (p Params) get(key string, def, min int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	if v < min {
		return 0, fmt.Errorf("%w: %s must be at least %d, got %d", ipc.ErrInvalidArgument, key, min, v)
	}
	return v, nil
}

func (p Params) millis(key string, def int) (Duration, error) {
	v, err := p.get(key, def, 0)
	return Duration(time.Duration(v) * time.Millisecond), err
}

// Builder produces a script from parameters
type Builder func(Params) (Script, error)

// Builtins lists the scenarios that are always available
var Builtins = map[string]Builder{
	"deadlock_ring":   DeadlockRing,
	"pipe_bottleneck": PipeBottleneck,
	"slow_consumer":   SlowConsumer,
	"shm_contention":  SharedMemoryContention,
}

// BuiltinNames returns the built-in scenario names in order
func BuiltinNames() []string {
	names := make([]string, 0, len(Builtins))
	for name := range Builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeadlockRing has N actors each take lock i and then wait for lock i+1,
// closing a circular wait.
//
// Params: actors (3), hold_ms (50).
func DeadlockRing(p Params) (Script, error) {
	n, err := p.get("actors", 3, 2)
	if err != nil {
		return Script{}, err
	}
	hold, err := p.millis("hold_ms", 50)
	if err != nil {
		return Script{}, err
	}

	s := Script{
		Name:        "deadlock_ring",
		Description: fmt.Sprintf("%d actors waiting on each other's locks in a ring", n),
	}
	for i := range n {
		s.Resources = append(s.Resources, ResourceSpec{Name: fmt.Sprintf("lock-%d", i), Kind: string(ipc.KindLock)})
	}
	for i := range n {
		own, next := fmt.Sprintf("lock-%d", i), fmt.Sprintf("lock-%d", (i+1)%n)
		s.Actors = append(s.Actors, ActorScript{
			Name: fmt.Sprintf("philosopher-%d", i),
			Steps: []Step{
				{Op: OpAcquire, Resource: own},
				{Op: OpAcquire, Resource: next, Delay: hold},
				{Op: OpRelease, Resource: next},
				{Op: OpRelease, Resource: own},
			},
		})
	}
	return s, nil
}

// PipeBottleneck has several writers push into a small pipe drained by one
// slow reader. Writers pile up in the pipe's wait-list.
//
// Params: writers (3), capacity (64), chunk (32), chunks (4), delay_ms (20).
func PipeBottleneck(p Params) (Script, error) {
	writers, err := p.get("writers", 3, 1)
	if err != nil {
		return Script{}, err
	}
	capacity, err := p.get("capacity", 64, 1)
	if err != nil {
		return Script{}, err
	}
	chunk, err := p.get("chunk", 32, 1)
	if err != nil {
		return Script{}, err
	}
	if chunk > capacity {
		return Script{}, fmt.Errorf("%w: chunk %d exceeds capacity %d", ipc.ErrInvalidArgument, chunk, capacity)
	}
	chunks, err := p.get("chunks", 4, 1)
	if err != nil {
		return Script{}, err
	}
	delay, err := p.millis("delay_ms", 20)
	if err != nil {
		return Script{}, err
	}

	s := Script{
		Name:        "pipe_bottleneck",
		Description: fmt.Sprintf("%d writers sharing a %d byte pipe with one slow reader", writers, capacity),
		Resources:   []ResourceSpec{{Name: "pipe", Kind: string(ipc.KindPipe), Capacity: capacity}},
	}
	for i := range writers {
		a := ActorScript{Name: fmt.Sprintf("writer-%d", i)}
		data := strings.Repeat(string(rune('a'+i%26)), chunk)
		for range chunks {
			a.Steps = append(a.Steps, Step{Op: OpWrite, Resource: "pipe", Data: data})
		}
		s.Actors = append(s.Actors, a)
	}

	// the reader drains half of what is written
	reader := ActorScript{Name: "reader"}
	for range writers * chunks / 2 {
		reader.Steps = append(reader.Steps, Step{Op: OpRead, Resource: "pipe", Size: chunk, Delay: delay})
	}
	s.Actors = append(s.Actors, reader)
	return s, nil
}

// SlowConsumer has producers fill a bounded queue faster than its single
// consumer drains it, tripping the near-full alert and parking producers.
//
// Params: producers (2), messages (20), capacity (10), delay_ms (20).
func SlowConsumer(p Params) (Script, error) {
	producers, err := p.get("producers", 2, 1)
	if err != nil {
		return Script{}, err
	}
	messages, err := p.get("messages", 20, 1)
	if err != nil {
		return Script{}, err
	}
	capacity, err := p.get("capacity", 10, 1)
	if err != nil {
		return Script{}, err
	}
	delay, err := p.millis("delay_ms", 20)
	if err != nil {
		return Script{}, err
	}

	s := Script{
		Name:        "slow_consumer",
		Description: fmt.Sprintf("%d producers, one slow consumer, queue of %d", producers, capacity),
		Resources:   []ResourceSpec{{Name: "queue", Kind: string(ipc.KindQueue), Capacity: capacity}},
	}
	for i := range producers {
		a := ActorScript{Name: fmt.Sprintf("producer-%d", i)}
		for j := range messages {
			a.Steps = append(a.Steps, Step{
				Op:       OpPut,
				Resource: "queue",
				Data:     fmt.Sprintf("producer-%d/%d", i, j),
				Priority: j % 3,
			})
		}
		s.Actors = append(s.Actors, a)
	}

	consumer := ActorScript{Name: "consumer"}
	for range producers * messages / 2 {
		consumer.Steps = append(consumer.Steps, Step{Op: OpGet, Resource: "queue", Delay: delay})
	}
	s.Actors = append(s.Actors, consumer)
	return s, nil
}

// SharedMemoryContention has several writers and readers take turns on one
// segment. Each writer stamps its own byte range.
//
// Params: writers (4), readers (2), rounds (3), hold_ms (10).
func SharedMemoryContention(p Params) (Script, error) {
	writers, err := p.get("writers", 4, 1)
	if err != nil {
		return Script{}, err
	}
	readers, err := p.get("readers", 2, 0)
	if err != nil {
		return Script{}, err
	}
	rounds, err := p.get("rounds", 3, 1)
	if err != nil {
		return Script{}, err
	}
	hold, err := p.millis("hold_ms", 10)
	if err != nil {
		return Script{}, err
	}

	const stripe = 8
	s := Script{
		Name:        "shm_contention",
		Description: fmt.Sprintf("%d writers and %d readers contending for one segment", writers, readers),
		Resources:   []ResourceSpec{{Name: "segment", Kind: string(ipc.KindSharedMemory), Size: writers * stripe}},
	}
	for i := range writers {
		a := ActorScript{Name: fmt.Sprintf("writer-%d", i)}
		for r := range rounds {
			a.Steps = append(a.Steps,
				Step{Op: OpAcquire, Resource: "segment", Mode: ipc.ModeWrite},
				Step{Op: OpWriteBytes, Resource: "segment", Offset: i * stripe, Data: fmt.Sprintf("w%d-r%d", i, r)},
				Step{Op: OpRelease, Resource: "segment", Delay: hold},
			)
		}
		s.Actors = append(s.Actors, a)
	}
	for i := range readers {
		a := ActorScript{Name: fmt.Sprintf("reader-%d", i)}
		for range rounds {
			a.Steps = append(a.Steps,
				Step{Op: OpAcquire, Resource: "segment", Mode: ipc.ModeRead},
				Step{Op: OpReadBytes, Resource: "segment", Size: writers * stripe},
				Step{Op: OpRelease, Resource: "segment", Delay: hold},
			)
		}
		s.Actors = append(s.Actors, a)
	}
	return s, nil
}
