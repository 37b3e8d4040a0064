package events

import (
	"context"

	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Subscription is a tail-following cursor over the log
type Subscription struct {
	ID      id.SubscriptionID
	log     *Log
	cursor  uint64
	dropped uint64
}

// Subscribe returns a cursor positioned at from. Use 0 or 1 to replay the
// retained window from the start and Last()+1 to follow only new entries.
func (l *Log) Subscribe(from uint64) *Subscription {
	if from == 0 {
		from = 1
	}
	return &Subscription{
		ID:     id.NewSubscriptionID(),
		log:    l,
		cursor: from,
	}
}

// Next blocks until the entry at the cursor is available, the context is
// done, or the log is closed.
func (s *Subscription) Next(ctx context.Context) (Entry, error) {
	for {
		s.log.mu.RLock()
		e, skipped, ok := s.log.atLocked(s.cursor)
		closed := s.log.closed
		wait := s.log.notify
		s.log.mu.RUnlock()

		s.dropped += skipped
		if ok {
			s.cursor = e.Seq + 1
			return e, nil
		}
		if closed {
			return Entry{}, ErrClosed
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// Cursor returns the sequence number Next will deliver
func (s *Subscription) Cursor() uint64 {
	return s.cursor
}

// Dropped returns how many entries slid out of retention before being read
func (s *Subscription) Dropped() uint64 {
	return s.dropped
}
