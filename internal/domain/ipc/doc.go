// Package ipc models the four simulated IPC resources: pipes, message
// queues, shared memory segments and locks.
//
// Every resource keeps its state in a mutex-guarded cell with an explicit
// FIFO wait-list. A blocking call parks its actor on the wait-list and
// waits on a per-waiter channel; whoever changes the state grants the
// waiters the new state allows before releasing the lock. Each state change
// is appended to the shared event log inside the same critical section, so
// log order equals commit order.
//
// Lock ordering: Runtime barrier, then resource mutex, then event log.
package ipc
