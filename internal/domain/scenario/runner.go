package scenario

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/deadlock"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/orchestrator"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/logging"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// DefaultSettle is how long a run waits for its actors before detection
const DefaultSettle = 200 * time.Millisecond

// RunOptions adjust a single run
type RunOptions struct {
	// Settle overrides the script's and the runner's settle period
	Settle time.Duration
	// Keep leaves actors and resources in place after detection so the
	// deadlock can be inspected. Blocked actors stay parked until they are
	// destroyed or the simulation is reset.
	Keep bool
}

// StepResult records the outcome of one scripted step
type StepResult struct {
	Actor    string        `json:"actor"`
	Index    int           `json:"index"`
	Op       Op            `json:"op"`
	Resource string        `json:"resource,omitempty"`
	Error    string        `json:"error,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result summarizes one run
type Result struct {
	RunID     string                   `json:"run_id"`
	Scenario  string                   `json:"scenario"`
	StartedAt time.Time                `json:"started_at"`
	Duration  time.Duration            `json:"duration"`
	Actors    map[string]id.ActorID    `json:"actors"`
	Resources map[string]id.ResourceID `json:"resources"`
	Deadlocks []deadlock.Report        `json:"deadlocks"`
	Steps     []StepResult             `json:"steps"`
	Kept      bool                     `json:"kept"`
}

// Deadlocked reports whether detection found at least one cycle
func (r *Result) Deadlocked() bool {
	return len(r.Deadlocks) > 0
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) { r.logger = log }
}

// WithMetrics records scenario outcomes
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSettle sets the default settle period
func WithSettle(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.settle = d
		}
	}
}

// Runner executes built-in and registered scripts against an orchestrator
type Runner struct {
	orch    *orchestrator.Orchestrator
	logger  *zap.Logger
	metrics *monitoring.Metrics
	settle  time.Duration

	mu      sync.RWMutex
	scripts map[string]Script // Protected by mu
}

// NewRunner creates a runner knowing only the built-in scenarios
func NewRunner(orch *orchestrator.Orchestrator, opts ...Option) *Runner {
	r := &Runner{
		orch:    orch,
		logger:  zap.NewNop(),
		settle:  DefaultSettle,
		scripts: make(map[string]Script),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a scripted scenario. Built-in names cannot be shadowed.
func (r *Runner) Register(s Script) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, ok := Builtins[s.Name]; ok {
		return fmt.Errorf("%w: %s is a built-in scenario", ipc.ErrInvalidArgument, s.Name)
	}
	r.mu.Lock()
	r.scripts[s.Name] = s
	r.mu.Unlock()
	return nil
}

// LoadDir registers every script file below dir and returns how many
// were loaded
func (r *Runner) LoadDir(dir string) (int, error) {
	scripts, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, s := range scripts {
		if err := r.Register(s); err != nil {
			return 0, err
		}
		r.logger.Info("Scenario loaded", zap.String("name", s.Name), zap.String("dir", dir))
	}
	return len(scripts), nil
}

// Names lists every runnable scenario, sorted
func (r *Runner) Names() []string {
	names := BuiltinNames()
	r.mu.RLock()
	for name := range r.scripts {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Resolve returns the script for name. Params apply to built-ins only.
func (r *Runner) Resolve(name string, params Params) (Script, error) {
	if build, ok := Builtins[name]; ok {
		return build(params)
	}
	r.mu.RLock()
	s, ok := r.scripts[name]
	r.mu.RUnlock()
	if !ok {
		return Script{}, fmt.Errorf("%w: scenario %q", ipc.ErrNotFound, name)
	}
	return s, nil
}

// Run resolves and executes a scenario by name
func (r *Runner) Run(ctx context.Context, name string, params Params, opts RunOptions) (*Result, error) {
	s, err := r.Resolve(name, params)
	if err != nil {
		r.metrics.RecordScenario(name, "error")
		return nil, err
	}
	return r.Execute(ctx, s, opts)
}

// Execute creates the script's resources and actors, runs every actor's
// steps concurrently, waits for the settle period (or until every actor
// finished), runs the deadlock detector once and tears the run down.
func (r *Runner) Execute(ctx context.Context, s Script, opts RunOptions) (*Result, error) {
	if err := s.Validate(); err != nil {
		r.metrics.RecordScenario(s.Name, "error")
		return nil, err
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Scenario:  s.Name,
		StartedAt: time.Now(),
		Actors:    make(map[string]id.ActorID, len(s.Actors)),
		Resources: make(map[string]id.ResourceID, len(s.Resources)),
		Kept:      opts.Keep,
	}
	logger := r.logger.With(logging.Scenario(s.Name, res.RunID))

	for _, spec := range s.Resources {
		kind, err := ipc.ParseKind(spec.Kind)
		var st ipc.ResourceState
		if err == nil {
			st, err = r.orch.CreateResource(kind, s.Name+"/"+spec.Name, spec.config())
		}
		if err != nil {
			r.destroyResources(res)
			r.metrics.RecordScenario(s.Name, "error")
			return nil, fmt.Errorf("scenario %s: create %s: %w", s.Name, spec.Name, err)
		}
		res.Resources[spec.Name] = st.ID
	}
	for _, a := range s.Actors {
		res.Actors[a.Name] = r.orch.CreateActor(s.Name + "/" + a.Name).ID
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rec := &recorder{}
	var g errgroup.Group
	for _, a := range s.Actors {
		actorID := res.Actors[a.Name]
		g.Go(func() error {
			r.play(runCtx, actorID, a, res.Resources, rec)
			return nil
		})
	}

	finished := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(finished)
	}()

	settle := r.settle
	if s.Settle > 0 {
		settle = s.Settle.Std()
	}
	if opts.Settle > 0 {
		settle = opts.Settle
	}
	timer := time.NewTimer(settle)
	select {
	case <-finished:
	case <-timer.C:
	case <-ctx.Done():
	}
	timer.Stop()

	res.Deadlocks = r.orch.RunDetectorOnce()

	if opts.Keep {
		go func() {
			<-finished
			cancel()
		}()
	} else {
		for _, a := range s.Actors {
			_ = r.orch.DestroyActor(res.Actors[a.Name])
		}
		cancel()
		<-finished
		r.destroyResources(res)
	}

	res.Steps = rec.results(s)
	res.Duration = time.Since(res.StartedAt)

	outcome := "ok"
	if res.Deadlocked() {
		outcome = "deadlock"
	}
	r.metrics.RecordScenario(s.Name, outcome)
	logger.Info("Scenario finished",
		zap.String("outcome", outcome),
		zap.Int("deadlocks", len(res.Deadlocks)),
		zap.Int("steps", len(res.Steps)),
		zap.Duration("duration", res.Duration),
		zap.Bool("kept", opts.Keep))
	return res, nil
}

func (r *Runner) destroyResources(res *Result) {
	for _, rid := range res.Resources {
		_ = r.orch.DestroyResource(rid, true)
	}
}

// play runs one actor's steps in order and stops at the first failure
func (r *Runner) play(ctx context.Context, actorID id.ActorID, a ActorScript, resources map[string]id.ResourceID, rec *recorder) {
	for i, step := range a.Steps {
		if step.Delay > 0 && !sleep(ctx, step.Delay.Std()) {
			return
		}
		start := time.Now()
		err := r.exec(ctx, actorID, step, resources[step.Resource])

		out := StepResult{Actor: a.Name, Index: i, Op: step.Op, Resource: step.Resource, Duration: time.Since(start)}
		if err != nil {
			out.Error = err.Error()
			out.Kind = ipc.ErrorKind(err)
		}
		rec.add(out)
		if err != nil {
			return
		}
	}
}

func (r *Runner) exec(ctx context.Context, actorID id.ActorID, step Step, rid id.ResourceID) error {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout.Std())
		defer cancel()
	}

	o := r.orch
	switch step.Op {
	case OpWrite:
		return o.Write(ctx, actorID, rid, []byte(step.Data))
	case OpRead:
		_, err := o.Read(ctx, actorID, rid, step.Size)
		return err
	case OpPut:
		return o.Put(ctx, actorID, rid, []byte(step.Data), step.Priority)
	case OpGet:
		_, err := o.Get(ctx, actorID, rid)
		return err
	case OpAcquire:
		return o.Acquire(ctx, actorID, rid, step.Mode)
	case OpRelease:
		return o.Release(actorID, rid)
	case OpWriteBytes:
		return o.WriteBytes(actorID, rid, step.Offset, []byte(step.Data))
	case OpReadBytes:
		_, _, err := o.ReadBytes(actorID, rid, step.Offset, step.Size)
		return err
	case OpAttach:
		return o.Attach(actorID, rid, step.Mode)
	case OpDetach:
		return o.Detach(actorID, rid)
	case OpClose:
		return o.Close(rid)
	case OpSleep:
		return nil
	}
	return fmt.Errorf("%w: unknown op %q", ipc.ErrInvalidArgument, step.Op)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type recorder struct {
	mu      sync.Mutex
	entries []StepResult
}

func (rec *recorder) add(s StepResult) {
	rec.mu.Lock()
	rec.entries = append(rec.entries, s)
	rec.mu.Unlock()
}

// results returns the recorded steps in script order
func (rec *recorder) results(s Script) []StepResult {
	order := make(map[string]int, len(s.Actors))
	for i, a := range s.Actors {
		order[a.Name] = i
	}

	rec.mu.Lock()
	out := slices.Clone(rec.entries)
	rec.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Actor != out[j].Actor {
			return order[out[i].Actor] < order[out[j].Actor]
		}
		return out[i].Index < out[j].Index
	})
	return out
}
