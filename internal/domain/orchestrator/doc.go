// Package orchestrator is the single entry point of the simulation.
//
// It owns every actor and resource, resolves IDs for each operation and
// delegates to the ipc models, runs the deadlock detector on demand or on
// an interval, and answers queries from consistent snapshots. Actor state
// is never stored: Running, Blocked and Terminated are derived from the
// resources' wait-lists at query time.
package orchestrator
