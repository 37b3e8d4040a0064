package deadlock

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Defaults
const (
	DefaultInterval = 500 * time.Millisecond
	DefaultHistory  = 100
)

// Step is one hop of a cycle: Actor waits on Resource, which the next
// actor of the cycle holds
type Step struct {
	Actor    id.ActorID    `json:"actor"`
	Resource id.ResourceID `json:"resource"`
}

// Report describes one independent deadlock
type Report struct {
	ID         id.ReportID     `json:"id"`
	DetectedAt time.Time       `json:"detected_at"`
	AsOf       uint64          `json:"as_of"`
	Cycle      []Step          `json:"cycle"`
	Actors     []id.ActorID    `json:"actors"`
	Resources  []id.ResourceID `json:"resources"`
	Blocked    []id.ActorID    `json:"blocked,omitempty"`
}

// Fingerprint identifies the deadlock independent of when it was seen
func (r Report) Fingerprint() string {
	var b strings.Builder
	for _, a := range r.Actors {
		b.WriteString(a.String())
		b.WriteByte(',')
	}
	b.WriteByte('|')
	for _, res := range r.Resources {
		b.WriteString(res.String())
		b.WriteByte(',')
	}
	return b.String()
}

// String renders the cycle as "a1 -r1-> a2 -r2-> a1"
func (r Report) String() string {
	if len(r.Cycle) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range r.Cycle {
		fmt.Fprintf(&b, "%s -%s-> ", s.Actor, s.Resource)
	}
	b.WriteString(r.Cycle[0].Actor.String())
	return b.String()
}

// Detect finds every independent cycle in snap. Reports come back ordered
// by their smallest actor; IDs are left empty.
func Detect(snap ipc.Snapshot) []Report {
	gr := Build(snap)
	var reports []Report
	for _, comp := range gr.components() {
		cycle := gr.cycleIn(comp)
		if len(cycle) < 2 {
			continue
		}
		reports = append(reports, gr.report(cycle))
	}
	return reports
}

func (gr *Graph) report(cycle []id.ActorID) Report {
	r := Report{
		AsOf:   gr.AsOf,
		Cycle:  make([]Step, 0, len(cycle)),
		Actors: slices.Sorted(slices.Values(cycle)),
	}
	in := make(map[id.ActorID]bool, len(cycle))
	for i, a := range cycle {
		in[a] = true
		next := cycle[(i+1)%len(cycle)]
		res := gr.Via(a, next)[0]
		r.Cycle = append(r.Cycle, Step{Actor: a, Resource: res})
		r.Resources = append(r.Resources, res)
	}
	slices.Sort(r.Resources)
	r.Resources = slices.Compact(r.Resources)

	for _, a := range gr.Actors() {
		if !in[a] && gr.Reaches(a, cycle[0]) {
			r.Blocked = append(r.Blocked, a)
		}
	}
	return r
}

// Option configures a Detector
type Option func(*Detector)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(d *Detector) { d.logger = log }
}

// WithInterval sets the period of Run
func WithInterval(interval time.Duration) Option {
	return func(d *Detector) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithHistory sets how many reports are retained
func WithHistory(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.history = n
		}
	}
}

// WithObserver registers a callback invoked for each logged report
func WithObserver(fn func(Report)) Option {
	return func(d *Detector) { d.observe = fn }
}

// Detector runs cycle detection against snapshots and records reports
type Detector struct {
	snapshot func() ipc.Snapshot
	log      *events.Log
	logger   *zap.Logger
	interval time.Duration
	history  int
	observe  func(Report)

	mu      sync.Mutex
	reports []Report        // Protected by mu; oldest first
	seen    map[string]bool // Protected by mu; fingerprints of the previous tick
	runs    uint64          // Protected by mu
}

// New creates a detector reading snapshots from snapshot and appending
// deadlock_detected entries to log
func New(snapshot func() ipc.Snapshot, log *events.Log, opts ...Option) *Detector {
	d := &Detector{
		snapshot: snapshot,
		log:      log,
		logger:   zap.NewNop(),
		interval: DefaultInterval,
		history:  DefaultHistory,
		seen:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Interval returns the period of Run
func (d *Detector) Interval() time.Duration {
	return d.interval
}

// RunOnce detects on a fresh snapshot and records every cycle found
func (d *Detector) RunOnce() []Report {
	reports := Detect(d.snapshot())

	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs++
	for i := range reports {
		d.record(&reports[i])
	}
	return reports
}

// Run detects every interval until ctx is done. A cycle is logged when it
// first appears, not again on consecutive ticks that still see it.
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("Deadlock detector started", zap.Duration("interval", d.interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Deadlock detector stopped")
			return nil
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Detector) tick() []Report {
	reports := Detect(d.snapshot())

	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs++

	current := make(map[string]bool, len(reports))
	var fresh []Report
	for i := range reports {
		fp := reports[i].Fingerprint()
		current[fp] = true
		if d.seen[fp] {
			continue
		}
		d.record(&reports[i])
		fresh = append(fresh, reports[i])
	}
	d.seen = current
	return fresh
}

// record assigns an ID, logs the report and appends it to the history; mu held
func (d *Detector) record(r *Report) {
	r.ID = id.NewReportID()
	r.DetectedAt = time.Now()

	d.log.Append(events.Entry{
		Kind:   events.KindDeadlockDetected,
		Detail: r.String(),
		Level:  int64(len(r.Actors)),
		Deadlock: &events.DeadlockInfo{
			ReportID:  r.ID,
			Actors:    r.Actors,
			Resources: r.Resources,
		},
	})

	d.reports = append(d.reports, *r)
	if over := len(d.reports) - d.history; over > 0 {
		d.reports = slices.Delete(d.reports, 0, over)
	}

	d.logger.Warn("Deadlock detected",
		zap.String("id", r.ID.String()),
		zap.String("cycle", r.String()),
		zap.Int("actors", len(r.Actors)),
		zap.Int("blocked", len(r.Blocked)),
		zap.Uint64("as_of", r.AsOf))

	if d.observe != nil {
		d.observe(*r)
	}
}

// Reports returns the last n reports, newest first. n <= 0 returns all.
func (d *Detector) Reports(n int) []Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n <= 0 || n > len(d.reports) {
		n = len(d.reports)
	}
	out := make([]Report, 0, n)
	for i := len(d.reports) - 1; i >= len(d.reports)-n; i-- {
		out = append(out, d.reports[i])
	}
	return out
}

// Runs returns how many detection passes have completed
func (d *Detector) Runs() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs
}

// Reset forgets every report
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = nil
	d.seen = make(map[string]bool)
}
