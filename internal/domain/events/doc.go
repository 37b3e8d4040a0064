// Package events records state transitions of every simulated IPC primitive.
//
// The log is append-only and thread-safe. Each entry receives a sequence
// number from an internal logical clock at append time; producers append
// while still inside the critical section that committed the mutation, so
// sequence order is commit order and is unaffected by wall-clock skew.
//
// Consumers read the log in two ways:
//   - Entries(from) is a lazy, restartable sequence over the retained window
//     that stops at the current end.
//   - Subscribe(from) returns a cursor whose Next blocks for new entries,
//     used by tail-following displays.
//
// Retention is bounded; when the window slides past a subscriber, the
// subscriber skips ahead and counts the dropped entries.
//
// Example Usage:
//
//	log := events.NewLog(10000)
//	log.Append(events.Entry{Kind: events.KindAcquired, Actor: a, Resource: r})
//
//	sub := log.Subscribe(0)
//	for {
//		e, err := sub.Next(ctx)
//		if err != nil {
//			return err
//		}
//		render(e)
//	}
package events
