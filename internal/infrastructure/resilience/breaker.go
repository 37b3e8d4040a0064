package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling fn while the breaker is open
// or while its single half-open probe is still in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = [...]string{"closed", "half-open", "open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Settings tune a Breaker. Zero values select the defaults noted.
type Settings struct {
	// Threshold is the run of consecutive failures that opens the breaker (5).
	Threshold int
	// Cooldown is how long the breaker stays open before probing (30s).
	Cooldown time.Duration
	// Probes is the run of half-open successes that closes it again (1).
	Probes int
	// IsSuccessful classifies a call's error; nil only by default.
	IsSuccessful func(err error) bool
	// OnStateChange observes transitions. It runs with the breaker locked
	// and must not call back into it.
	OnStateChange func(name string, from, to State)
}

// Stats counts outcomes since the breaker was created.
type Stats struct {
	Successes   uint64
	Failures    uint64
	Rejected    uint64
	Consecutive int // current failure run while closed, success run while half-open
}

// Breaker stops calls to a server that keeps failing.
type Breaker struct {
	name string
	cfg  Settings
	now  func() time.Time

	mu       sync.Mutex
	state    State
	openedAt time.Time
	probing  bool
	stats    Stats
}

// New creates a closed breaker.
func New(name string, s Settings) *Breaker {
	if s.Threshold <= 0 {
		s.Threshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Probes <= 0 {
		s.Probes = 1
	}
	if s.IsSuccessful == nil {
		s.IsSuccessful = func(err error) bool { return err == nil }
	}
	return &Breaker{name: name, cfg: s, now: time.Now}
}

func (b *Breaker) Name() string { return b.name }

// State reports the state, moving an expired open breaker to half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick()
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Execute calls fn unless the breaker rejects it, and returns fn's error
// unchanged. A panic in fn counts as a failure and is re-raised.
func (b *Breaker) Execute(fn func() error) (err error) {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		b.record(probe, ok)
	}()

	err = fn()
	ok = b.cfg.IsSuccessful(err)
	return err
}

// Do runs fn through b and returns its result.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick()

	switch b.state {
	case StateOpen:
		b.stats.Rejected++
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			b.stats.Rejected++
			return false, ErrCircuitOpen
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}

	if ok {
		b.stats.Successes++
	} else {
		b.stats.Failures++
	}

	switch b.state {
	case StateClosed:
		if ok {
			b.stats.Consecutive = 0
			return
		}
		b.stats.Consecutive++
		if b.stats.Consecutive >= b.cfg.Threshold {
			b.moveTo(StateOpen)
		}
	case StateHalfOpen:
		if !probe {
			return
		}
		if !ok {
			b.moveTo(StateOpen)
			return
		}
		b.stats.Consecutive++
		if b.stats.Consecutive >= b.cfg.Probes {
			b.moveTo(StateClosed)
		}
	}
}

// tick must be called with mu held.
func (b *Breaker) tick() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.moveTo(StateHalfOpen)
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.stats.Consecutive = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}
