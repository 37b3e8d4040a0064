package scenario

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/utils"
)

// Duration is a time.Duration that reads and writes as "250ms" in JSON,
// YAML and TOML
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ipc.ErrInvalidArgument, b)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Op names a scripted operation
type Op string

const (
	OpWrite      Op = "write"
	OpRead       Op = "read"
	OpPut        Op = "put"
	OpGet        Op = "get"
	OpAcquire    Op = "acquire"
	OpRelease    Op = "release"
	OpWriteBytes Op = "write_bytes"
	OpReadBytes  Op = "read_bytes"
	OpAttach     Op = "attach"
	OpDetach     Op = "detach"
	OpClose      Op = "close"
	OpSleep      Op = "sleep"
)

// ResourceSpec declares a resource a script creates
type ResourceSpec struct {
	Name             string   `json:"name" yaml:"name" toml:"name"`
	Kind             string   `json:"kind" yaml:"kind" toml:"kind"`
	Capacity         int      `json:"capacity,omitempty" yaml:"capacity,omitempty" toml:"capacity,omitempty"`
	Size             int      `json:"size,omitempty" yaml:"size,omitempty" toml:"size,omitempty"`
	Mode             ipc.Mode `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode,omitempty"`
	PriorityOrdering bool     `json:"priority_ordering,omitempty" yaml:"priority_ordering,omitempty" toml:"priority_ordering,omitempty"`
	ExclusiveReads   bool     `json:"exclusive_reads,omitempty" yaml:"exclusive_reads,omitempty" toml:"exclusive_reads,omitempty"`
	Timeout          Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

func (r ResourceSpec) config() ipc.Config {
	return ipc.Config{
		Capacity:         r.Capacity,
		Size:             r.Size,
		Mode:             r.Mode,
		PriorityOrdering: r.PriorityOrdering,
		ExclusiveReads:   r.ExclusiveReads,
		Timeout:          r.Timeout.Std(),
	}
}

// Step is one operation of an actor's script. Delay is slept before the
// operation runs.
type Step struct {
	Op       Op       `json:"op" yaml:"op" toml:"op"`
	Resource string   `json:"resource,omitempty" yaml:"resource,omitempty" toml:"resource,omitempty"`
	Data     string   `json:"data,omitempty" yaml:"data,omitempty" toml:"data,omitempty"`
	Size     int      `json:"size,omitempty" yaml:"size,omitempty" toml:"size,omitempty"`
	Offset   int      `json:"offset,omitempty" yaml:"offset,omitempty" toml:"offset,omitempty"`
	Priority int      `json:"priority,omitempty" yaml:"priority,omitempty" toml:"priority,omitempty"`
	Mode     ipc.Mode `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode,omitempty"`
	Delay    Duration `json:"delay,omitempty" yaml:"delay,omitempty" toml:"delay,omitempty"`
	Timeout  Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// ActorScript is the ordered step list one actor runs
type ActorScript struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Steps []Step `json:"steps" yaml:"steps" toml:"steps"`
}

// Script is a complete scenario: the resources it creates and the actors
// that run concurrently against them
type Script struct {
	Name        string         `json:"name" yaml:"name" toml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Settle      Duration       `json:"settle,omitempty" yaml:"settle,omitempty" toml:"settle,omitempty"`
	Resources   []ResourceSpec `json:"resources" yaml:"resources" toml:"resources"`
	Actors      []ActorScript  `json:"actors" yaml:"actors" toml:"actors"`
}

// Validate checks names are unique and every step is well-formed
func (s Script) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: scenario has no name", ipc.ErrInvalidArgument)
	}
	if err := utils.ValidateID(s.Name, "scenario name"); err != nil {
		return fmt.Errorf("%w: %v", ipc.ErrInvalidArgument, err)
	}
	if len(s.Actors) == 0 {
		return fmt.Errorf("%w: scenario %s has no actors", ipc.ErrInvalidArgument, s.Name)
	}

	kinds := make(map[string]ipc.Kind, len(s.Resources))
	for _, r := range s.Resources {
		if r.Name == "" {
			return fmt.Errorf("%w: scenario %s: resource without a name", ipc.ErrInvalidArgument, s.Name)
		}
		if err := utils.ValidateName(r.Name, "resource name"); err != nil {
			return fmt.Errorf("%w: scenario %s: %v", ipc.ErrInvalidArgument, s.Name, err)
		}
		if _, dup := kinds[r.Name]; dup {
			return fmt.Errorf("%w: scenario %s: duplicate resource %q", ipc.ErrInvalidArgument, s.Name, r.Name)
		}
		kind, err := ipc.ParseKind(r.Kind)
		if err != nil {
			return fmt.Errorf("scenario %s: resource %q: %w", s.Name, r.Name, err)
		}
		kinds[r.Name] = kind
	}

	actors := make(map[string]bool, len(s.Actors))
	for _, a := range s.Actors {
		if a.Name == "" {
			return fmt.Errorf("%w: scenario %s: actor without a name", ipc.ErrInvalidArgument, s.Name)
		}
		if err := utils.ValidateName(a.Name, "actor name"); err != nil {
			return fmt.Errorf("%w: scenario %s: %v", ipc.ErrInvalidArgument, s.Name, err)
		}
		if actors[a.Name] {
			return fmt.Errorf("%w: scenario %s: duplicate actor %q", ipc.ErrInvalidArgument, s.Name, a.Name)
		}
		actors[a.Name] = true

		for i, step := range a.Steps {
			if err := step.validate(kinds); err != nil {
				return fmt.Errorf("scenario %s: actor %s step %d: %w", s.Name, a.Name, i, err)
			}
		}
	}
	return nil
}

// opKinds lists the resource kinds each operation applies to
var opKinds = map[Op][]ipc.Kind{
	OpWrite:      {ipc.KindPipe},
	OpRead:       {ipc.KindPipe},
	OpPut:        {ipc.KindQueue},
	OpGet:        {ipc.KindQueue},
	OpAcquire:    {ipc.KindLock, ipc.KindSharedMemory},
	OpRelease:    {ipc.KindLock, ipc.KindSharedMemory},
	OpWriteBytes: {ipc.KindSharedMemory},
	OpReadBytes:  {ipc.KindSharedMemory},
	OpAttach:     {ipc.KindPipe, ipc.KindQueue},
	OpDetach:     {ipc.KindPipe, ipc.KindQueue},
	OpClose:      {ipc.KindPipe, ipc.KindQueue},
}

func (s Step) validate(kinds map[string]ipc.Kind) error {
	if s.Op == OpSleep {
		return nil
	}
	allowed, ok := opKinds[s.Op]
	if !ok {
		return fmt.Errorf("%w: unknown op %q", ipc.ErrInvalidArgument, s.Op)
	}
	kind, ok := kinds[s.Resource]
	if !ok {
		return fmt.Errorf("%w: unknown resource %q", ipc.ErrInvalidArgument, s.Resource)
	}
	for _, k := range allowed {
		if k == kind {
			return nil
		}
	}
	return fmt.Errorf("%w: %s does not apply to %s %q", ipc.ErrInvalidArgument, s.Op, kind, s.Resource)
}
