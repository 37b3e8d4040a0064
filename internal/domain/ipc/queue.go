package ipc

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// A queue logs a nearly_full event when its length reaches
// nearlyFullPercent of capacity
const nearlyFullPercent = 80

// Queue is a bounded message queue, FIFO or priority ordered.
//
// In priority mode Get returns the highest priority first and breaks ties
// by enqueue order.
type Queue struct {
	*cell

	store    messageStore // Protected by mu
	seq      uint64       // Protected by mu
	nearFull bool         // Protected by mu
}

// NewQueue creates an empty queue holding at most cfg.Capacity messages
func NewQueue(rt *Runtime, rid id.ResourceID, name string, cfg Config) (*Queue, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: queue capacity must be positive, got %d", ErrInvalidArgument, cfg.Capacity)
	}
	q := &Queue{cell: newCell(rt, rid, KindQueue, name, cfg)}
	if cfg.PriorityOrdering {
		q.store = &priorityStore{}
	} else {
		q.store = &fifoStore{}
	}
	q.level = func() int64 { return int64(q.store.Len()) }
	q.dispatch = q.dispatchLocked
	q.announce()
	return q, nil
}

// Capacity returns the maximum number of messages
func (q *Queue) Capacity() int {
	return q.cfg.Capacity
}

// Size returns the number of queued messages
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Len()
}

// Attach registers a as a producer (Write) or consumer (Read)
func (q *Queue) Attach(a *Actor, role Mode) error {
	if role != ModeRead && role != ModeWrite && role != ModeReadWrite {
		return fmt.Errorf("%w: queue endpoint role %d", ErrInvalidArgument, role)
	}
	q.lock()
	defer q.unlock()

	if err := q.admit(a); err != nil {
		return err
	}
	q.grant(a.ID, role)
	return nil
}

// Detach removes a's endpoint
func (q *Queue) Detach(a *Actor) error {
	q.lock()
	defer q.unlock()

	if err := q.admit(a); err != nil {
		return err
	}
	if !q.revoke(a.ID, "") {
		return fmt.Errorf("%w: actor %s is not attached to queue %q", ErrAccessViolation, a.ID, q.name)
	}
	return nil
}

// Put enqueues msg, waiting while the queue is full
func (q *Queue) Put(ctx context.Context, a *Actor, msg Message) error {
	q.lock()
	if err := q.admit(a); err != nil {
		q.unlock()
		return err
	}
	msg.Sender = a.ID
	msg.Payload = append([]byte(nil), msg.Payload...)

	if !q.queued(ModeWrite) && q.store.Len() < q.cfg.Capacity {
		q.grant(a.ID, ModeWrite)
		q.push(msg)
		q.emit(events.KindMutated, a.ID, fmt.Sprintf("put priority=%d", msg.Priority), "")
		q.watermark()
		q.dispatch()
		q.unlock()
		return nil
	}

	w, err := q.block(a, ModeWrite, 1, ModeWrite)
	if err != nil {
		q.unlock()
		return err
	}
	w.msg = msg
	q.unlock()

	return q.wait(ctx, w)
}

// Get dequeues the next message, waiting while the queue is empty
func (q *Queue) Get(ctx context.Context, a *Actor) (Message, error) {
	q.lock()
	if err := q.admit(a); err != nil {
		q.unlock()
		return Message{}, err
	}
	if !q.queued(ModeRead) && q.store.Len() > 0 {
		q.grant(a.ID, ModeRead)
		msg := q.store.pop()
		q.emit(events.KindMutated, a.ID, fmt.Sprintf("get seq=%d", msg.Seq), "")
		q.watermark()
		q.dispatch()
		q.unlock()
		return msg, nil
	}

	w, err := q.block(a, ModeRead, 1, ModeRead)
	if err != nil {
		q.unlock()
		return Message{}, err
	}
	q.unlock()

	if err := q.wait(ctx, w); err != nil {
		return Message{}, err
	}
	return w.msg, nil
}

// Close wakes every waiter with ErrClosed and rejects further operations
func (q *Queue) Close() error {
	return q.close()
}

// State copies the queue's state, messages in delivery order
func (q *Queue) State() ResourceState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state()
}

func (q *Queue) state() ResourceState {
	s := q.baseState()
	s.Capacity = q.cfg.Capacity
	s.Length = q.store.Len()
	s.Messages = q.store.list()
	return s
}

func (q *Queue) push(msg Message) {
	q.seq++
	msg.Seq = q.seq
	msg.EnqueuedAt = time.Now()
	q.store.push(msg)
}

// watermark logs a nearly_full event once per upward crossing
func (q *Queue) watermark() {
	threshold := (q.cfg.Capacity*nearlyFullPercent + 99) / 100
	switch n := q.store.Len(); {
	case !q.nearFull && n >= threshold:
		q.nearFull = true
		q.emit(events.KindNearlyFull, 0, fmt.Sprintf("%d/%d", n, q.cfg.Capacity), "")
	case q.nearFull && n < threshold:
		q.nearFull = false
	}
}

func (q *Queue) dispatchLocked() {
	for {
		progressed := false
		if w := q.head(ModeWrite); w != nil && q.store.Len() < q.cfg.Capacity {
			q.push(w.msg)
			q.finish(w, nil)
			q.watermark()
			progressed = true
		}
		if w := q.head(ModeRead); w != nil && q.store.Len() > 0 {
			w.msg = q.store.pop()
			q.finish(w, nil)
			q.watermark()
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

// messageStore orders queued messages
type messageStore interface {
	Len() int
	push(Message)
	pop() Message
	list() []Message
}

type fifoStore struct {
	items []Message
}

func (f *fifoStore) Len() int { return len(f.items) }

func (f *fifoStore) push(m Message) { f.items = append(f.items, m) }

func (f *fifoStore) pop() Message {
	m := f.items[0]
	f.items[0] = Message{}
	f.items = f.items[1:]
	return m
}

func (f *fifoStore) list() []Message {
	return append([]Message(nil), f.items...)
}

// messageHeap implements heap.Interface: highest priority first, then
// lowest sequence number
type messageHeap []Message

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) { *h = append(*h, x.(Message)) }

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	old[n-1] = Message{}
	*h = old[:n-1]
	return m
}

type priorityStore struct {
	items messageHeap
}

func (p *priorityStore) Len() int { return p.items.Len() }

func (p *priorityStore) push(m Message) { heap.Push(&p.items, m) }

func (p *priorityStore) pop() Message { return heap.Pop(&p.items).(Message) }

func (p *priorityStore) list() []Message {
	out := append(messageHeap(nil), p.items...)
	sort.Sort(out)
	return out
}
