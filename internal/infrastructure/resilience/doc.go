// Package resilience guards ipcctl against a debugger server that is down.
//
// A Breaker opens after a run of consecutive failures and rejects calls
// with ErrCircuitOpen until its cooldown passes. It then lets one probe
// through at a time; enough successful probes close it, a failed probe
// reopens it. The caller decides what counts as a failure, and a domain
// answer such as ResourceBusy or Timeout is a healthy response:
//
//	b := resilience.New("ipc-debugger", resilience.Settings{
//		Threshold:    5,
//		Cooldown:     10 * time.Second,
//		IsSuccessful: func(err error) bool { return err == nil || client.IsDomainError(err) },
//	})
//	snap, err := resilience.Do(b, func() (*Snapshot, error) { return api.Snapshot(ctx) })
package resilience
