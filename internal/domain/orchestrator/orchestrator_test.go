package orchestrator

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

func async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

func await(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not return")
		return nil
	}
}

func awaitBlocked(t *testing.T, o *Orchestrator, actor id.ActorID) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, err := o.Actor(actor)
		return err == nil && info.State == StateBlocked
	}, 2*time.Second, time.Millisecond)
}

func mustCreate(t *testing.T, o *Orchestrator, kind ipc.Kind, name string, cfg ipc.Config) id.ResourceID {
	t.Helper()
	st, err := o.CreateResource(kind, name, cfg)
	require.NoError(t, err)
	return st.ID
}

func TestActorLifecycle(t *testing.T) {
	o := New()
	a := o.CreateActor("worker")
	b := o.CreateActor("")

	assert.Equal(t, StateRunning, a.State)
	assert.Equal(t, "a2", b.Name)
	assert.Less(t, a.ID, b.ID)

	actors := o.Actors()
	require.Len(t, actors, 2)
	assert.Equal(t, a.ID, actors[0].ID)

	require.NoError(t, o.DestroyActor(a.ID))
	info, err := o.Actor(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, info.State)

	assert.ErrorIs(t, o.DestroyActor(a.ID), ipc.ErrInvalidArgument)
	assert.ErrorIs(t, o.DestroyActor(99), ipc.ErrNotFound)
	_, err = o.Actor(99)
	assert.ErrorIs(t, err, ipc.ErrNotFound)
}

func TestCreateResourceDefaults(t *testing.T) {
	o := New(WithSettings(Settings{
		Retention:     100,
		PipeCapacity:  16,
		QueueCapacity: 4,
		SharedMemSize: 32,
		OpTimeout:     time.Second,
	}))

	pipe, err := o.CreateResource(ipc.KindPipe, "", ipc.Config{})
	require.NoError(t, err)
	assert.Equal(t, 16, pipe.Capacity)
	assert.Equal(t, time.Second, pipe.Config.Timeout)
	assert.Equal(t, "pipe-1", pipe.Name)

	queue, err := o.CreateResource(ipc.KindQueue, "jobs", ipc.Config{})
	require.NoError(t, err)
	assert.Equal(t, 4, queue.Capacity)

	shm, err := o.CreateResource(ipc.KindSharedMemory, "seg", ipc.Config{})
	require.NoError(t, err)
	assert.Equal(t, 32, shm.Size)

	custom, err := o.CreateResource(ipc.KindPipe, "", ipc.Config{Capacity: 2, Timeout: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 2, custom.Capacity)
	assert.Equal(t, time.Millisecond, custom.Config.Timeout)

	_, err = o.CreateResource(ipc.KindPipe, "", ipc.Config{Capacity: -1})
	assert.ErrorIs(t, err, ipc.ErrInvalidArgument)
	_, err = o.CreateResource(ipc.KindLock, "", ipc.Config{Timeout: -time.Second})
	assert.ErrorIs(t, err, ipc.ErrInvalidArgument)

	assert.Len(t, o.Resources(), 4)
}

func TestOperationResolution(t *testing.T) {
	o := New()
	a := o.CreateActor("a")
	lock := mustCreate(t, o, ipc.KindLock, "l", ipc.Config{})
	pipe := mustCreate(t, o, ipc.KindPipe, "p", ipc.Config{Capacity: 4})
	ctx := context.Background()

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"write to lock", o.Write(ctx, a.ID, lock, []byte("x")), ipc.ErrInvalidArgument},
		{"acquire pipe", o.Acquire(ctx, a.ID, pipe, ipc.ModeWrite), ipc.ErrInvalidArgument},
		{"release pipe", o.Release(a.ID, pipe), ipc.ErrInvalidArgument},
		{"attach lock", o.Attach(a.ID, lock, ipc.ModeRead), ipc.ErrInvalidArgument},
		{"close lock", o.Close(lock), ipc.ErrInvalidArgument},
		{"unknown resource", o.Write(ctx, a.ID, 99, []byte("x")), ipc.ErrNotFound},
		{"unknown actor", o.Write(ctx, 99, pipe, []byte("x")), ipc.ErrNotFound},
		{"shared lock mode", o.Acquire(ctx, a.ID, lock, ipc.ModeRead), ipc.ErrInvalidArgument},
		{"release unheld", o.Release(a.ID, lock), ipc.ErrAccessViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.wantErr)
		})
	}

	_, err := o.Size(lock)
	assert.ErrorIs(t, err, ipc.ErrInvalidArgument)
}

func TestPipeAndQueueOperations(t *testing.T) {
	o := New()
	w, r := o.CreateActor("w"), o.CreateActor("r")
	pipe := mustCreate(t, o, ipc.KindPipe, "p", ipc.Config{Capacity: 8})
	queue := mustCreate(t, o, ipc.KindQueue, "q", ipc.Config{Capacity: 8, PriorityOrdering: true})
	ctx := context.Background()

	require.NoError(t, o.Write(ctx, w.ID, pipe, []byte("data")))
	got, err := o.Read(ctx, r.ID, pipe, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	for i, p := range []int{3, 1, 2} {
		require.NoError(t, o.Put(ctx, w.ID, queue, []byte{byte('a' + i)}, p))
	}
	n, err := o.Size(queue)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var priorities []int
	for range 3 {
		msg, err := o.Get(ctx, r.ID, queue)
		require.NoError(t, err)
		priorities = append(priorities, msg.Priority)
	}
	assert.Equal(t, []int{3, 2, 1}, priorities)

	require.NoError(t, o.Detach(r.ID, queue))
	assert.ErrorIs(t, o.Detach(r.ID, queue), ipc.ErrAccessViolation)
	require.NoError(t, o.Attach(r.ID, queue, ipc.ModeRead))

	require.NoError(t, o.Close(pipe))
	assert.ErrorIs(t, o.Write(ctx, w.ID, pipe, []byte("x")), ipc.ErrClosed)
}

func TestSharedMemoryOperations(t *testing.T) {
	o := New()
	a := o.CreateActor("a")
	seg := mustCreate(t, o, ipc.KindSharedMemory, "seg", ipc.Config{Size: 8})

	require.NoError(t, o.Acquire(context.Background(), a.ID, seg, ipc.ModeWrite))
	require.NoError(t, o.WriteBytes(a.ID, seg, 0, []byte("hi")))
	data, gen, err := o.ReadBytes(a.ID, seg, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)
	assert.Equal(t, uint64(1), gen)
	assert.ErrorIs(t, o.WriteBytes(a.ID, seg, 7, []byte("hi")), ipc.ErrOutOfBounds)
	require.NoError(t, o.Release(a.ID, seg))
}

// two-segment deadlock: X holds S1 and wants S2, Y holds S2 and wants S1
func TestTwoSegmentDeadlockReportedOnce(t *testing.T) {
	metrics := monitoring.NewMetrics()
	o := New(WithMetrics(metrics))
	x, y := o.CreateActor("X"), o.CreateActor("Y")
	s1 := mustCreate(t, o, ipc.KindSharedMemory, "S1", ipc.Config{Size: 16})
	s2 := mustCreate(t, o, ipc.KindSharedMemory, "S2", ipc.Config{Size: 16})
	ctx := context.Background()

	require.NoError(t, o.Acquire(ctx, x.ID, s1, ipc.ModeWrite))
	require.NoError(t, o.Acquire(ctx, y.ID, s2, ipc.ModeWrite))
	doneX := async(func() error { return o.Acquire(ctx, x.ID, s2, ipc.ModeWrite) })
	doneY := async(func() error { return o.Acquire(ctx, y.ID, s1, ipc.ModeWrite) })
	awaitBlocked(t, o, x.ID)
	awaitBlocked(t, o, y.ID)

	reports := o.RunDetectorOnce()
	require.Len(t, reports, 1)
	assert.ElementsMatch(t, []id.ActorID{x.ID, y.ID}, reports[0].Actors)
	assert.ElementsMatch(t, []id.ResourceID{s1, s2}, reports[0].Resources)

	var logged int
	for e := range o.Log().Entries(0) {
		if e.Kind == events.KindDeadlockDetected {
			logged++
			require.NotNil(t, e.Deadlock)
			assert.Equal(t, reports[0].ID, e.Deadlock.ReportID)
		}
	}
	assert.Equal(t, 1, logged)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeadlocksDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DetectorRuns))

	history := o.Deadlocks(10)
	require.Len(t, history, 1)
	assert.Equal(t, reports[0].ID, history[0].ID)

	// Destroying one side breaks the cycle
	require.NoError(t, o.DestroyActor(x.ID))
	assert.ErrorIs(t, await(t, doneX), ipc.ErrCanceled)
	require.NoError(t, await(t, doneY))
	assert.Empty(t, o.RunDetectorOnce())
}

func TestNoFalsePositive(t *testing.T) {
	o := New()
	x, y := o.CreateActor("X"), o.CreateActor("Y")
	s1 := mustCreate(t, o, ipc.KindLock, "S1", ipc.Config{})
	ctx := context.Background()

	require.NoError(t, o.Acquire(ctx, x.ID, s1, 0))
	done := async(func() error { return o.Acquire(ctx, y.ID, s1, 0) })
	awaitBlocked(t, o, y.ID)

	assert.Empty(t, o.RunDetectorOnce())
	info, err := o.Actor(y.ID)
	require.NoError(t, err)
	assert.Equal(t, s1, info.BlockedOn)

	require.NoError(t, o.Release(x.ID, s1))
	require.NoError(t, await(t, done))
}

func TestPartialPipeReadLeavesNoHiddenStall(t *testing.T) {
	o := New()
	ctx := context.Background()
	a, b := o.CreateActor("a"), o.CreateActor("b")
	pipe := mustCreate(t, o, ipc.KindPipe, "p", ipc.Config{Capacity: 4})

	require.NoError(t, o.Write(ctx, a.ID, pipe, []byte("abc")))
	out, err := o.Read(ctx, b.ID, pipe, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
	require.NoError(t, o.Write(ctx, a.ID, pipe, []byte("de")))

	for _, actor := range []id.ActorID{a.ID, b.ID} {
		info, err := o.Actor(actor)
		require.NoError(t, err)
		assert.Equal(t, StateRunning, info.State)
	}
	st, err := o.Resource(pipe)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Fill)
	assert.Empty(t, st.Waiters)
	assert.Empty(t, o.RunDetectorOnce())
}

func TestDestroyActorReleasesHoldings(t *testing.T) {
	o := New()
	owner, waiter := o.CreateActor("owner"), o.CreateActor("waiter")
	lock := mustCreate(t, o, ipc.KindLock, "l", ipc.Config{})
	ctx := context.Background()

	require.NoError(t, o.Acquire(ctx, owner.ID, lock, 0))
	done := async(func() error { return o.Acquire(ctx, waiter.ID, lock, 0) })
	awaitBlocked(t, o, waiter.ID)

	require.NoError(t, o.DestroyActor(owner.ID))
	require.NoError(t, await(t, done))

	st, err := o.Resource(lock)
	require.NoError(t, err)
	require.Len(t, st.Holders, 1)
	assert.Equal(t, waiter.ID, st.Holders[0].Actor)

	assert.ErrorIs(t, o.Acquire(ctx, owner.ID, lock, 0), ipc.ErrCanceled)
}

func TestDestroyResource(t *testing.T) {
	o := New()
	owner, waiter := o.CreateActor("owner"), o.CreateActor("waiter")
	lock := mustCreate(t, o, ipc.KindLock, "l", ipc.Config{})
	ctx := context.Background()

	require.NoError(t, o.Acquire(ctx, owner.ID, lock, 0))
	done := async(func() error { return o.Acquire(ctx, waiter.ID, lock, 0) })
	awaitBlocked(t, o, waiter.ID)

	before, err := o.Resource(lock)
	require.NoError(t, err)
	assert.ErrorIs(t, o.DestroyResource(lock, false), ipc.ErrResourceBusy)
	after, err := o.Resource(lock)
	require.NoError(t, err)
	assert.Equal(t, before.Holders, after.Holders)
	assert.Equal(t, before.Waiters, after.Waiters)

	require.NoError(t, o.DestroyResource(lock, true))
	assert.ErrorIs(t, await(t, done), ipc.ErrClosed)
	_, err = o.Resource(lock)
	assert.ErrorIs(t, err, ipc.ErrNotFound)
	assert.ErrorIs(t, o.DestroyResource(lock, true), ipc.ErrNotFound)

	idle := mustCreate(t, o, ipc.KindQueue, "idle", ipc.Config{Capacity: 1})
	require.NoError(t, o.DestroyResource(idle, false))
}

func TestOperationTimeout(t *testing.T) {
	o := New(WithSettings(Settings{Retention: 100, PipeCapacity: 4, QueueCapacity: 4, SharedMemSize: 4, OpTimeout: 10 * time.Millisecond}))
	a := o.CreateActor("a")
	queue := mustCreate(t, o, ipc.KindQueue, "q", ipc.Config{})

	_, err := o.Get(context.Background(), a.ID, queue)
	assert.ErrorIs(t, err, ipc.ErrTimeout)

	info, err := o.Actor(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, info.State)
}

type replayed struct {
	holders map[id.ActorID]bool
	waiters map[id.ActorID]bool
	level   int64
}

// replay rebuilds holders, waiters and level per resource from the log
// entries up to and including sequence upto
func replay(log *events.Log, upto uint64) map[id.ResourceID]*replayed {
	state := make(map[id.ResourceID]*replayed)
	for e := range log.Entries(0) {
		if e.Seq > upto {
			break
		}
		if e.Resource == 0 {
			continue
		}
		rs, ok := state[e.Resource]
		if !ok {
			rs = &replayed{holders: map[id.ActorID]bool{}, waiters: map[id.ActorID]bool{}}
			state[e.Resource] = rs
		}
		rs.level = e.Level
		switch e.Kind {
		case events.KindAcquired:
			rs.holders[e.Actor] = true
		case events.KindReleased:
			delete(rs.holders, e.Actor)
		case events.KindBlockedOn:
			rs.waiters[e.Actor] = true
		case events.KindUnblocked:
			delete(rs.waiters, e.Actor)
		case events.KindDestroyed:
			delete(state, e.Resource)
		}
	}
	return state
}

func TestEventLogReplayMatchesSnapshot(t *testing.T) {
	o := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b, c := o.CreateActor("a"), o.CreateActor("b"), o.CreateActor("c")
	pipe := mustCreate(t, o, ipc.KindPipe, "p", ipc.Config{Capacity: 2})
	queue := mustCreate(t, o, ipc.KindQueue, "q", ipc.Config{Capacity: 2})
	seg := mustCreate(t, o, ipc.KindSharedMemory, "s", ipc.Config{Size: 4})
	lock := mustCreate(t, o, ipc.KindLock, "l", ipc.Config{})
	gone := mustCreate(t, o, ipc.KindLock, "gone", ipc.Config{})

	require.NoError(t, o.Write(ctx, a.ID, pipe, []byte("xy")))
	_, err := o.Read(ctx, b.ID, pipe, 1)
	require.NoError(t, err)
	require.NoError(t, o.Put(ctx, b.ID, queue, []byte("m"), 0))
	require.NoError(t, o.Acquire(ctx, c.ID, seg, ipc.ModeRead))
	require.NoError(t, o.Acquire(ctx, a.ID, seg, ipc.ModeRead))
	require.NoError(t, o.Acquire(ctx, a.ID, lock, 0))
	require.NoError(t, o.DestroyResource(gone, false))

	_ = async(func() error { return o.Write(ctx, a.ID, pipe, []byte("zz")) })
	awaitBlocked(t, o, a.ID)
	_ = async(func() error { return o.Acquire(ctx, b.ID, seg, ipc.ModeWrite) })
	awaitBlocked(t, o, b.ID)
	_ = async(func() error { return o.Acquire(ctx, c.ID, lock, 0) })
	awaitBlocked(t, o, c.ID)

	snap := o.Snapshot()
	assertReplayMatches(t, snap, replay(o.Log(), snap.AsOf))
}

// assertReplayMatches compares a snapshot with the replayed log. It only
// uses assert so it can run off the test goroutine.
func assertReplayMatches(t *testing.T, snap ipc.Snapshot, state map[id.ResourceID]*replayed) bool {
	t.Helper()
	ok := assert.Len(t, state, len(snap.Resources), "resources as of %d", snap.AsOf)

	for _, rs := range snap.Resources {
		got, found := state[rs.ID]
		if !assert.True(t, found, "resource %s missing from replay", rs.ID) {
			ok = false
			continue
		}

		wantHolders := map[id.ActorID]bool{}
		for _, h := range rs.Holders {
			wantHolders[h.Actor] = true
		}
		replayedHolders := map[id.ActorID]bool{}
		for actor := range got.holders {
			if !got.waiters[actor] {
				replayedHolders[actor] = true
			}
		}
		wantWaiters := map[id.ActorID]bool{}
		for _, w := range rs.Waiters {
			wantWaiters[w.Actor] = true
		}

		ok = assert.Equal(t, wantHolders, replayedHolders, "holders of %s as of %d", rs.ID, snap.AsOf) && ok
		ok = assert.Equal(t, wantWaiters, got.waiters, "waiters of %s as of %d", rs.ID, snap.AsOf) && ok
		ok = assert.Equal(t, rs.Level, got.level, "level of %s as of %d", rs.ID, snap.AsOf) && ok
	}
	return ok
}

func TestConcurrentReplayMatchesEverySnapshot(t *testing.T) {
	s := DefaultSettings()
	s.Retention = 0
	o := New(WithSettings(s))

	const pipeCap, queueCap = 8, 4
	pipe := mustCreate(t, o, ipc.KindPipe, "p", ipc.Config{Capacity: pipeCap})
	queue := mustCreate(t, o, ipc.KindQueue, "q", ipc.Config{Capacity: queueCap})

	// writer i writes only byte i+1 so reads can be tallied per writer
	const writers, readers = 4, 4
	rng := rand.New(rand.NewPCG(42, 1))
	chunks := make([][]int, writers)
	var total int64
	for i := range chunks {
		for range 50 {
			n := 1 + rng.IntN(pipeCap)
			chunks[i] = append(chunks[i], n)
			total += int64(n)
		}
	}

	readCtx, stopReaders := context.WithCancel(context.Background())
	defer stopReaders()

	var (
		work    sync.WaitGroup
		read    atomic.Int64
		tallyMu sync.Mutex
		tally   [writers + 1]int64
	)
	for i := range writers {
		a := o.CreateActor("writer")
		work.Add(1)
		go func() {
			defer work.Done()
			for _, n := range chunks[i] {
				data := make([]byte, n)
				for j := range data {
					data[j] = byte(i + 1)
				}
				if !assert.NoError(t, o.Write(context.Background(), a.ID, pipe, data)) {
					return
				}
			}
		}()
	}
	for range readers {
		a := o.CreateActor("reader")
		work.Add(1)
		go func() {
			defer work.Done()
			for read.Load() < total {
				b, err := o.Read(readCtx, a.ID, pipe, pipeCap)
				if err != nil {
					assert.ErrorIs(t, err, ipc.ErrCanceled)
					return
				}
				tallyMu.Lock()
				for _, c := range b {
					tally[c]++
				}
				tallyMu.Unlock()
				if read.Add(int64(len(b))) == total {
					stopReaders()
				}
			}
		}()
	}

	const producers, perProducer = 2, 100
	var got atomic.Int64
	for range producers {
		p, c := o.CreateActor("producer"), o.CreateActor("consumer")
		work.Add(2)
		go func() {
			defer work.Done()
			for j := range perProducer {
				if !assert.NoError(t, o.Put(context.Background(), p.ID, queue, []byte{byte(j)}, j%3)) {
					return
				}
			}
		}()
		go func() {
			defer work.Done()
			for range perProducer {
				if _, err := o.Get(context.Background(), c.ID, queue); !assert.NoError(t, err) {
					return
				}
				got.Add(1)
			}
		}()
	}

	done := make(chan struct{})
	var checks sync.WaitGroup
	var snapshots atomic.Int64
	checks.Add(1)
	go func() {
		defer checks.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			snap := o.Snapshot()
			snapshots.Add(1)
			for _, rs := range snap.Resources {
				assert.GreaterOrEqual(t, rs.Fill, 0)
				assert.LessOrEqual(t, rs.Fill, rs.Capacity, "fill of %s", rs.Name)
				assert.LessOrEqual(t, rs.Length, rs.Capacity, "length of %s", rs.Name)
				for _, w := range rs.Waiters {
					assert.False(t, rs.Holds(w.Actor), "%s both holds and waits on %s", w.Actor, rs.Name)
				}
			}
			if !assertReplayMatches(t, snap, replay(o.Log(), snap.AsOf)) {
				return
			}
		}
	}()

	work.Wait()
	close(done)
	checks.Wait()

	assert.Positive(t, snapshots.Load())
	assert.Equal(t, total, read.Load())
	assert.Equal(t, int64(producers*perProducer), got.Load())
	for i := range writers {
		var want int64
		for _, n := range chunks[i] {
			want += int64(n)
		}
		assert.Equal(t, want, tally[i+1], "bytes of writer %d", i)
	}

	snap := o.Snapshot()
	assertReplayMatches(t, snap, replay(o.Log(), snap.AsOf))
	for _, rs := range snap.Resources {
		assert.Empty(t, rs.Waiters, "waiters of %s", rs.Name)
		assert.Zero(t, rs.Fill, "fill of %s", rs.Name)
		assert.Zero(t, rs.Length, "length of %s", rs.Name)
	}
}

func TestReset(t *testing.T) {
	o := New()
	a, b := o.CreateActor("a"), o.CreateActor("b")
	lock := mustCreate(t, o, ipc.KindLock, "l", ipc.Config{})
	ctx := context.Background()

	require.NoError(t, o.Acquire(ctx, a.ID, lock, 0))
	done := async(func() error { return o.Acquire(ctx, b.ID, lock, 0) })
	awaitBlocked(t, o, b.ID)

	o.Reset()
	err := await(t, done)
	require.Error(t, err)
	assert.Contains(t, []string{"Closed", "Canceled"}, ipc.ErrorKind(err))

	assert.Empty(t, o.Actors())
	assert.Empty(t, o.Resources())
	assert.Empty(t, o.Deadlocks(0))
	assert.Equal(t, 0, o.Log().Len())

	c := o.CreateActor("c")
	assert.Greater(t, c.ID, b.ID, "IDs are never reused")
}

func TestStats(t *testing.T) {
	o := New()
	a, b := o.CreateActor("a"), o.CreateActor("b")
	lock := mustCreate(t, o, ipc.KindLock, "l", ipc.Config{})
	mustCreate(t, o, ipc.KindPipe, "p", ipc.Config{Capacity: 1})
	ctx := context.Background()

	require.NoError(t, o.Acquire(ctx, a.ID, lock, 0))
	done := async(func() error { return o.Acquire(ctx, b.ID, lock, 0) })
	awaitBlocked(t, o, b.ID)

	s := o.Stats()
	assert.Equal(t, 2, s.Actors)
	assert.Equal(t, 1, s.Blocked)
	assert.Equal(t, 1, s.Resources[ipc.KindLock])
	assert.Equal(t, 1, s.Resources[ipc.KindPipe])
	assert.Equal(t, 1, s.Waits.Waiting)
	assert.GreaterOrEqual(t, s.Waits.MaxSeconds, 0.0)
	assert.Equal(t, s.Waits.MaxSeconds, s.Waits.MeanSeconds)

	require.NoError(t, o.Release(a.ID, lock))
	require.NoError(t, await(t, done))
}

func TestSummarize(t *testing.T) {
	ws := summarize([]float64{1, 2, 3})
	assert.Equal(t, 3, ws.Waiting)
	assert.InDelta(t, 2.0, ws.MeanSeconds, 1e-9)
	assert.InDelta(t, 1.0, ws.StdDevSeconds, 1e-9)
	assert.Equal(t, 3.0, ws.MaxSeconds)

	assert.Equal(t, WaitStats{}, summarize(nil))
}

func TestPeriodicDetector(t *testing.T) {
	o := New(WithSettings(Settings{Retention: 1000, DetectorInterval: 5 * time.Millisecond, DetectorHistory: 10, PipeCapacity: 1, QueueCapacity: 1, SharedMemSize: 1}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	x, y := o.CreateActor("x"), o.CreateActor("y")
	p1 := mustCreate(t, o, ipc.KindPipe, "p1", ipc.Config{})
	p2 := mustCreate(t, o, ipc.KindPipe, "p2", ipc.Config{})

	// x fills p1 and then waits to write more; y waits to read p2, which
	// only x writes, while being p1's only reader
	require.NoError(t, o.Attach(y.ID, p1, ipc.ModeRead))
	require.NoError(t, o.Attach(x.ID, p2, ipc.ModeWrite))
	require.NoError(t, o.Write(ctx, x.ID, p1, []byte("a")))
	_ = async(func() error { return o.Write(ctx, x.ID, p1, []byte("b")) })
	_ = async(func() error { _, err := o.Read(ctx, y.ID, p2, 1); return err })
	awaitBlocked(t, o, x.ID)
	awaitBlocked(t, o, y.ID)

	go func() { _ = o.StartDetector(ctx) }()
	require.Eventually(t, func() bool { return len(o.Deadlocks(0)) == 1 }, 2*time.Second, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, o.Deadlocks(0), 1, "a persisting cycle is logged once")
}
