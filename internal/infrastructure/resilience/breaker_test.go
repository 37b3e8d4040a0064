package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errBusy = errors.New("busy")
	errDown = errors.New("connection refused")
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(s Settings) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := New("test", s)
	b.now = c.now
	return b, c
}

func fail() error    { return errDown }
func succeed() error { return nil }

func TestBreakerTrips(t *testing.T) {
	tests := []struct {
		name  string
		s     Settings
		calls []func() error
		want  State
	}{
		{"successes keep it closed", Settings{}, []func() error{succeed, succeed, succeed}, StateClosed},
		{"threshold opens it", Settings{Threshold: 3}, []func() error{fail, fail, fail}, StateOpen},
		{"success breaks the run", Settings{Threshold: 2}, []func() error{fail, succeed, fail}, StateClosed},
		{"default threshold is five", Settings{}, []func() error{fail, fail, fail, fail, fail}, StateOpen},
		{"four is not enough", Settings{}, []func() error{fail, fail, fail, fail}, StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(tt.s)
			for _, call := range tt.calls {
				_ = b.Execute(call)
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerClassifiesErrors(t *testing.T) {
	b, _ := newTestBreaker(Settings{
		Threshold:    1,
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errBusy) },
	})

	err := b.Execute(func() error { return errBusy })
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, StateClosed, b.State())

	assert.ErrorIs(t, b.Execute(fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	st := b.Stats()
	assert.Equal(t, uint64(1), st.Successes)
	assert.Equal(t, uint64(1), st.Failures)
}

func TestBreakerCooldownAndRecovery(t *testing.T) {
	var transitions []string
	b, c := newTestBreaker(Settings{
		Threshold: 2,
		Cooldown:  time.Second,
		Probes:    2,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, uint64(1), b.Stats().Rejected)

	c.advance(500 * time.Millisecond)
	assert.Equal(t, StateOpen, b.State())
	c.advance(time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(succeed))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(succeed))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b, c := newTestBreaker(Settings{Threshold: 1, Cooldown: time.Second})
	_ = b.Execute(fail)
	c.advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Execute(fail)
	assert.Equal(t, StateOpen, b.State())

	c.advance(500 * time.Millisecond)
	assert.Equal(t, StateOpen, b.State(), "cooldown restarts on reopen")
}

func TestBreakerSingleProbe(t *testing.T) {
	b, c := newTestBreaker(Settings{Threshold: 1, Cooldown: time.Second})
	_ = b.Execute(fail)
	c.advance(2 * time.Second)

	var inner error
	require.NoError(t, b.Execute(func() error {
		inner = b.Execute(succeed)
		return nil
	}))
	assert.ErrorIs(t, inner, ErrCircuitOpen)
	assert.Equal(t, StateClosed, b.State())
}

func TestDo(t *testing.T) {
	b, _ := newTestBreaker(Settings{})
	n, err := Do(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Do(b, func() (string, error) { return "", errBusy })
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, uint64(1), b.Stats().Failures)
	assert.Equal(t, 1, b.Stats().Consecutive)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{Threshold: 1})
	assert.Panics(t, func() {
		_ = b.Execute(func() error { panic("boom") })
	})
	assert.Equal(t, uint64(1), b.Stats().Failures)
	assert.Equal(t, StateOpen, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
