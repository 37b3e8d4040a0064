// Package scenario runs reproducible IPC workloads against an orchestrator.
//
// A Script declares resources and, per actor, an ordered list of steps. The
// four built-in scenarios (deadlock_ring, pipe_bottleneck, slow_consumer and
// shm_contention) are generated from parameters; further scripts are loaded
// from YAML or TOML files. Every actor's steps run in their own goroutine.
// After a settle period the runner runs the deadlock detector once and, unless
// asked to keep the run, destroys its actors and resources.
package scenario
