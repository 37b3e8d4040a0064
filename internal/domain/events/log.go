package events

import (
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// ErrClosed is returned by subscriptions once the log has been closed
var ErrClosed = errors.New("event log closed")

// Kind classifies a log entry
type Kind string

const (
	KindAcquired         Kind = "acquired"
	KindReleased         Kind = "released"
	KindBlockedOn        Kind = "blocked_on"
	KindUnblocked        Kind = "unblocked"
	KindDeadlockDetected Kind = "deadlock_detected"
	KindMutated          Kind = "mutated"
	KindRead             Kind = "read"
	KindCreated          Kind = "created"
	KindDestroyed        Kind = "destroyed"
	KindClosed           Kind = "closed"
	KindNearlyFull       Kind = "nearly_full"
	KindActorStarted     Kind = "actor_started"
	KindActorTerminated  Kind = "actor_terminated"
)

// Unblock and release reasons
const (
	ReasonGranted    = "granted"
	ReasonClosed     = "closed"
	ReasonTimeout    = "timeout"
	ReasonCanceled   = "canceled"
	ReasonTerminated = "terminated"
)

// DeadlockInfo is attached to deadlock_detected entries
type DeadlockInfo struct {
	ReportID  id.ReportID     `json:"report_id"`
	Actors    []id.ActorID    `json:"actors"`
	Resources []id.ResourceID `json:"resources"`
}

// Entry is a single immutable log record.
//
// Level carries the resource's kind-specific level after the event: pipe fill
// in bytes, queue length, shared memory generation, lock holder count.
type Entry struct {
	Seq          uint64        `json:"seq"`
	Time         time.Time     `json:"time"`
	Kind         Kind          `json:"kind"`
	Actor        id.ActorID    `json:"actor,omitempty"`
	Resource     id.ResourceID `json:"resource,omitempty"`
	ResourceKind string        `json:"resource_kind,omitempty"`
	Detail       string        `json:"detail,omitempty"`
	Level        int64         `json:"level"`
	Reason       string        `json:"reason,omitempty"`
	Deadlock     *DeadlockInfo `json:"deadlock,omitempty"`
}

// Log is the append-only event record shared by all primitives
type Log struct {
	mu        sync.RWMutex
	entries   []Entry       // Protected by mu; visible window is entries[off:]
	off       int           // Protected by mu
	next      uint64        // Protected by mu; next sequence number
	notify    chan struct{} // Protected by mu; closed and replaced on append
	closed    bool          // Protected by mu
	retention int
	now       func() time.Time
}

// NewLog creates a log that keeps at most retention entries (0 = unbounded)
func NewLog(retention int) *Log {
	if retention < 0 {
		retention = 0
	}
	return &Log{
		next:      1,
		notify:    make(chan struct{}),
		retention: retention,
		now:       time.Now,
	}
}

// Append assigns the next sequence number and timestamp and stores the entry.
// The stored copy is returned.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = l.next
	e.Time = l.now()
	l.next++

	if l.closed {
		return e
	}

	l.entries = append(l.entries, e)
	if l.retention > 0 && len(l.entries)-l.off > l.retention {
		l.off++
		if l.off >= l.retention {
			l.entries = append([]Entry(nil), l.entries[l.off:]...)
			l.off = 0
		}
	}

	close(l.notify)
	l.notify = make(chan struct{})
	return e
}

// Last returns the sequence number of the most recent entry, or 0
func (l *Log) Last() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next - 1
}

// First returns the sequence number of the oldest retained entry, or 0
func (l *Log) First() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.firstLocked()
}

// Len returns the number of retained entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries) - l.off
}

func (l *Log) firstLocked() uint64 {
	if len(l.entries) == l.off {
		return 0
	}
	return l.entries[l.off].Seq
}

// atLocked returns the entry with sequence seq, clamping seq to the oldest
// retained entry. ok is false when no entry at or after seq exists yet.
func (l *Log) atLocked(seq uint64) (e Entry, skipped uint64, ok bool) {
	first := l.firstLocked()
	if first == 0 {
		return Entry{}, 0, false
	}
	if seq < first {
		skipped = first - seq
		seq = first
	}
	idx := l.off + int(seq-first)
	if idx >= len(l.entries) {
		return Entry{}, skipped, false
	}
	return l.entries[idx], skipped, true
}

// Entries returns a lazy sequence over retained entries with Seq >= from.
// It ends at the entry that is last when iteration reaches it; ranging again
// restarts from from.
func (l *Log) Entries(from uint64) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		seq := from
		for {
			l.mu.RLock()
			e, _, ok := l.atLocked(seq)
			l.mu.RUnlock()
			if !ok {
				return
			}
			if !yield(e) {
				return
			}
			seq = e.Seq + 1
		}
	}
}

// Range returns up to limit retained entries with Seq >= from (limit <= 0 means all)
func (l *Log) Range(from uint64, limit int) []Entry {
	var out []Entry
	for e := range l.Entries(from) {
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Tail returns the last n retained entries in order
func (l *Log) Tail(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	visible := l.entries[l.off:]
	if n <= 0 || n > len(visible) {
		n = len(visible)
	}
	out := make([]Entry, n)
	copy(out, visible[len(visible)-n:])
	return out
}

// Close stops the log. Appends after Close are numbered but not retained and
// subscribers receive ErrClosed once they have drained the window.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.notify)
}

// Reset drops every retained entry. Sequence numbers keep increasing.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.off = 0
}
