package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/deadlock"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/logging"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Settings tune the orchestrator and the defaults applied to new resources
type Settings struct {
	Retention        int
	DetectorInterval time.Duration
	DetectorHistory  int
	PipeCapacity     int
	QueueCapacity    int
	SharedMemSize    int
	OpTimeout        time.Duration
}

// DefaultSettings returns the settings used when none are given
func DefaultSettings() Settings {
	return Settings{
		Retention:        10000,
		DetectorInterval: deadlock.DefaultInterval,
		DetectorHistory:  deadlock.DefaultHistory,
		PipeCapacity:     65536,
		QueueCapacity:    100,
		SharedMemSize:    1024,
	}
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = log }
}

// WithMetrics records operation and detector metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSettings replaces the default settings
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// Orchestrator is the single entry point for the simulation. It owns the
// actors and resources, resolves IDs for every operation and runs the
// deadlock detector.
type Orchestrator struct {
	settings Settings
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	log      *events.Log
	rt       *ipc.Runtime
	detector *deadlock.Detector

	actorSeq    id.Sequence
	resourceSeq id.Sequence

	mu        sync.RWMutex
	actors    map[id.ActorID]*ipc.Actor       // Protected by mu
	resources map[id.ResourceID]ipc.Resource // Protected by mu
}

// New creates an empty orchestrator
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings:  DefaultSettings(),
		logger:    zap.NewNop(),
		actors:    make(map[id.ActorID]*ipc.Actor),
		resources: make(map[id.ResourceID]ipc.Resource),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.log = events.NewLog(o.settings.Retention)
	o.rt = ipc.NewRuntime(o.log)
	o.detector = deadlock.New(o.Snapshot, o.log,
		deadlock.WithLogger(o.logger.Named("detector")),
		deadlock.WithInterval(o.settings.DetectorInterval),
		deadlock.WithHistory(o.settings.DetectorHistory),
		deadlock.WithObserver(func(r deadlock.Report) {
			o.metrics.RecordDeadlock(len(r.Actors))
		}),
	)
	return o
}

// Log returns the event log
func (o *Orchestrator) Log() *events.Log {
	return o.log
}

// Settings returns the active settings
func (o *Orchestrator) Settings() Settings {
	return o.settings
}

// CreateActor registers a new running actor
func (o *Orchestrator) CreateActor(name string) ActorInfo {
	a := ipc.NewActor(id.ActorID(o.actorSeq.Next()), name)

	o.mu.Lock()
	o.actors[a.ID] = a
	live := o.liveActorsLocked()
	o.mu.Unlock()

	o.log.Append(events.Entry{Kind: events.KindActorStarted, Actor: a.ID, Detail: a.Name})
	o.metrics.IncActorsTotal()
	o.metrics.SetActorsActive(live)
	o.logger.Debug("Actor created", logging.Actor(a.ID), zap.String("name", a.Name))

	return ActorInfo{ID: a.ID, Name: a.Name, State: StateRunning, CreatedAt: a.CreatedAt}
}

// DestroyActor terminates an actor. Its pending waits fail with
// ErrCanceled, then everything it holds is released so waiters can proceed.
func (o *Orchestrator) DestroyActor(actorID id.ActorID) error {
	o.mu.RLock()
	a, ok := o.actors[actorID]
	resources := o.resourcesLocked()
	o.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: actor %s", ipc.ErrNotFound, actorID)
	}
	if a.Terminated() {
		return fmt.Errorf("%w: actor %s already terminated", ipc.ErrInvalidArgument, actorID)
	}

	a.Terminate()
	canceled := 0
	for _, r := range resources {
		canceled += r.CancelWaits(actorID)
	}
	for _, r := range resources {
		r.ReleaseAll(actorID)
	}

	o.log.Append(events.Entry{Kind: events.KindActorTerminated, Actor: actorID, Detail: a.Name})

	o.mu.RLock()
	live := o.liveActorsLocked()
	o.mu.RUnlock()
	o.metrics.SetActorsActive(live)
	o.logger.Debug("Actor destroyed",
		logging.Actor(actorID),
		zap.Int("canceled_waits", canceled))
	return nil
}

// CreateResource creates a resource, filling unset configuration from the
// settings
func (o *Orchestrator) CreateResource(kind ipc.Kind, name string, cfg ipc.Config) (ipc.ResourceState, error) {
	switch kind {
	case ipc.KindPipe:
		if cfg.Capacity == 0 {
			cfg.Capacity = o.settings.PipeCapacity
		}
	case ipc.KindQueue:
		if cfg.Capacity == 0 {
			cfg.Capacity = o.settings.QueueCapacity
		}
	case ipc.KindSharedMemory:
		if cfg.Size == 0 && cfg.Capacity == 0 {
			cfg.Size = o.settings.SharedMemSize
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = o.settings.OpTimeout
	}
	if cfg.Timeout < 0 {
		return ipc.ResourceState{}, fmt.Errorf("%w: negative timeout %s", ipc.ErrInvalidArgument, cfg.Timeout)
	}

	rid := id.ResourceID(o.resourceSeq.Next())
	r, err := ipc.New(o.rt, rid, kind, name, cfg)
	if err != nil {
		return ipc.ResourceState{}, err
	}

	o.mu.Lock()
	o.resources[rid] = r
	count := o.countKindLocked(kind)
	o.mu.Unlock()

	o.metrics.SetResourcesActive(string(kind), count)
	o.logger.Debug("Resource created",
		logging.Resource(rid),
		zap.String("kind", string(kind)),
		zap.String("name", r.Name()))
	return r.State(), nil
}

// DestroyResource removes a resource. Without force a resource with holders
// or waiters is left untouched and ErrResourceBusy returned; with force its
// waiters fail with ErrClosed and its holders are dropped.
func (o *Orchestrator) DestroyResource(rid id.ResourceID, force bool) error {
	r, err := o.resource(rid)
	if err != nil {
		return err
	}
	if err := r.Destroy(force); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.resources, rid)
	count := o.countKindLocked(r.Kind())
	o.mu.Unlock()

	o.metrics.SetResourcesActive(string(r.Kind()), count)
	o.logger.Debug("Resource destroyed",
		logging.Resource(rid),
		zap.Bool("force", force))
	return nil
}

// RunDetectorOnce runs deadlock detection on a fresh snapshot
func (o *Orchestrator) RunDetectorOnce() []deadlock.Report {
	o.metrics.IncDetectorRuns()
	return o.detector.RunOnce()
}

// StartDetector runs periodic detection until ctx is done
func (o *Orchestrator) StartDetector(ctx context.Context) error {
	return o.detector.Run(ctx)
}

// Subscribe follows the event log starting at sequence from
func (o *Orchestrator) Subscribe(from uint64) *events.Subscription {
	return o.log.Subscribe(from)
}

// Events returns up to limit retained entries starting at from
func (o *Orchestrator) Events(from uint64, limit int) []events.Entry {
	return o.log.Range(from, limit)
}

// Reset terminates every actor, force-destroys every resource and clears
// the event log and report history. IDs are never reused.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	actors := o.actors
	resources := o.resources
	o.actors = make(map[id.ActorID]*ipc.Actor)
	o.resources = make(map[id.ResourceID]ipc.Resource)
	o.mu.Unlock()

	for _, a := range actors {
		a.Terminate()
	}
	for _, r := range resources {
		_ = r.Destroy(true)
	}

	o.log.Reset()
	o.detector.Reset()

	o.metrics.SetActorsActive(0)
	for _, k := range ipc.Kinds {
		o.metrics.SetResourcesActive(string(k), 0)
	}
	o.logger.Info("Simulation reset",
		zap.Int("actors", len(actors)),
		zap.Int("resources", len(resources)))
}

func (o *Orchestrator) resource(rid id.ResourceID) (ipc.Resource, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.resources[rid]
	if !ok {
		return nil, fmt.Errorf("%w: resource %s", ipc.ErrNotFound, rid)
	}
	return r, nil
}

func (o *Orchestrator) actor(actorID id.ActorID) (*ipc.Actor, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.actors[actorID]
	if !ok {
		return nil, fmt.Errorf("%w: actor %s", ipc.ErrNotFound, actorID)
	}
	return a, nil
}

// resourcesLocked lists resources; mu held
func (o *Orchestrator) resourcesLocked() []ipc.Resource {
	out := make([]ipc.Resource, 0, len(o.resources))
	for _, r := range o.resources {
		out = append(out, r)
	}
	return out
}

func (o *Orchestrator) liveActorsLocked() int {
	n := 0
	for _, a := range o.actors {
		if !a.Terminated() {
			n++
		}
	}
	return n
}

func (o *Orchestrator) countKindLocked(kind ipc.Kind) int {
	n := 0
	for _, r := range o.resources {
		if r.Kind() == kind {
			n++
		}
	}
	return n
}
