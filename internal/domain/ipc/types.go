package ipc

import (
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Kind is the closed set of modelled resources
type Kind string

const (
	KindPipe         Kind = "pipe"
	KindQueue        Kind = "queue"
	KindSharedMemory Kind = "shared_memory"
	KindLock         Kind = "lock"
)

// Kinds lists every resource kind in display order
var Kinds = []Kind{KindPipe, KindQueue, KindSharedMemory, KindLock}

// ParseKind accepts the canonical names plus a few common aliases
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pipe":
		return KindPipe, nil
	case "queue", "mq", "message_queue":
		return KindQueue, nil
	case "shared_memory", "shm", "segment":
		return KindSharedMemory, nil
	case "lock", "mutex":
		return KindLock, nil
	}
	return "", fmt.Errorf("%w: unknown resource kind %q", ErrInvalidArgument, s)
}

// Mode is an access mode bitmask.
//
// For locks and shared memory it is the lock mode an actor holds or requests.
// For pipes and queues it is the endpoint role: Write for writers/producers,
// Read for readers/consumers.
type Mode uint8

const (
	ModeRead      Mode = 1 << iota
	ModeWrite
	ModeReadWrite = ModeRead | ModeWrite
)

// Has reports whether every bit of other is set in m
func (m Mode) Has(other Mode) bool {
	return other != 0 && m&other == other
}

// Allows reports whether a resource configured with m permits requests in r
func (m Mode) Allows(r Mode) bool {
	return m.Has(r)
}

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWrite:
		return "read_write"
	}
	return "none"
}

// ParseMode parses "read", "write" or "read_write"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "r", "shared":
		return ModeRead, nil
	case "write", "w", "exclusive":
		return ModeWrite, nil
	case "read_write", "readwrite", "rw":
		return ModeReadWrite, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, s)
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Config is recognized at resource creation time
type Config struct {
	Capacity         int           `json:"capacity,omitempty"`
	Size             int           `json:"size,omitempty"`
	Mode             Mode          `json:"mode,omitempty"`
	PriorityOrdering bool          `json:"priority_ordering,omitempty"`
	ExclusiveReads   bool          `json:"exclusive_reads,omitempty"`
	Timeout          time.Duration `json:"timeout,omitempty"`
}

// Message is a queue element
type Message struct {
	Payload    []byte     `json:"payload"`
	Priority   int        `json:"priority"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	Seq        uint64     `json:"seq"`
	Sender     id.ActorID `json:"sender,omitempty"`
}

// HolderState describes an actor currently granted a resource
type HolderState struct {
	Actor  id.ActorID `json:"actor"`
	Access Mode       `json:"access"`
	Since  time.Time  `json:"since"`
}

// WaiterState describes an actor parked on a resource
type WaiterState struct {
	Actor  id.ActorID `json:"actor"`
	Intent Mode       `json:"intent"`
	Amount int        `json:"amount,omitempty"`
	Since  time.Time  `json:"since"`
}

// ResourceState is a copy of one resource's state taken under its lock
type ResourceState struct {
	ID           id.ResourceID `json:"id"`
	Name         string        `json:"name"`
	Kind         Kind          `json:"kind"`
	Config       Config        `json:"config"`
	Closed       bool          `json:"closed"`
	Holders      []HolderState `json:"holders"`
	Waiters      []WaiterState `json:"waiters"`
	Capacity     int           `json:"capacity,omitempty"`
	Level        int64         `json:"level"`
	Fill         int           `json:"fill,omitempty"`
	Length       int           `json:"length,omitempty"`
	Generation   uint64        `json:"generation,omitempty"`
	Size         int           `json:"size,omitempty"`
	Messages     []Message     `json:"messages,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	Operations   uint64        `json:"operations"`
}

// Holds reports whether actor is among the holders
func (s ResourceState) Holds(actor id.ActorID) bool {
	for _, h := range s.Holders {
		if h.Actor == actor {
			return true
		}
	}
	return false
}

// WaitingFor reports whether actor is among the waiters
func (s ResourceState) WaitingFor(actor id.ActorID) bool {
	for _, w := range s.Waiters {
		if w.Actor == actor {
			return true
		}
	}
	return false
}

// Snapshot is a consistent view across resources at one logical instant
type Snapshot struct {
	AsOf      uint64          `json:"as_of"`
	TakenAt   time.Time       `json:"taken_at"`
	Resources []ResourceState `json:"resources"`
}
