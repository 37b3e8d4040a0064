package deadlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

func held(actor id.ActorID, mode ipc.Mode) ipc.HolderState {
	return ipc.HolderState{Actor: actor, Access: mode}
}

func waiting(actor id.ActorID, mode ipc.Mode) ipc.WaiterState {
	return ipc.WaiterState{Actor: actor, Intent: mode}
}

func resource(rid id.ResourceID, kind ipc.Kind, holders []ipc.HolderState, waiters []ipc.WaiterState) ipc.ResourceState {
	return ipc.ResourceState{ID: rid, Kind: kind, Holders: holders, Waiters: waiters}
}

const (
	x, y, z, w = id.ActorID(1), id.ActorID(2), id.ActorID(3), id.ActorID(4)
	s1, s2, s3 = id.ResourceID(10), id.ResourceID(11), id.ResourceID(12)
)

func TestDetectTwoSegmentDeadlock(t *testing.T) {
	snap := ipc.Snapshot{AsOf: 42, Resources: []ipc.ResourceState{
		resource(s1, ipc.KindSharedMemory,
			[]ipc.HolderState{held(x, ipc.ModeWrite)},
			[]ipc.WaiterState{waiting(y, ipc.ModeWrite)}),
		resource(s2, ipc.KindSharedMemory,
			[]ipc.HolderState{held(y, ipc.ModeWrite)},
			[]ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
	}}

	reports := Detect(snap)
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, []id.ActorID{x, y}, r.Actors)
	assert.Equal(t, []id.ResourceID{s1, s2}, r.Resources)
	assert.Equal(t, []Step{{Actor: x, Resource: s2}, {Actor: y, Resource: s1}}, r.Cycle)
	assert.Equal(t, uint64(42), r.AsOf)
	assert.Empty(t, r.Blocked)
	assert.Equal(t, "a1 -r11-> a2 -r10-> a1", r.String())
}

func TestDetectNoFalsePositive(t *testing.T) {
	tests := []struct {
		name string
		snap ipc.Snapshot
	}{
		{
			name: "chain without cycle",
			snap: ipc.Snapshot{Resources: []ipc.ResourceState{
				resource(s1, ipc.KindLock, []ipc.HolderState{held(y, ipc.ModeWrite)}, []ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
				resource(s2, ipc.KindLock, []ipc.HolderState{held(z, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeWrite)}),
			}},
		},
		{
			name: "readers share a segment",
			snap: ipc.Snapshot{Resources: []ipc.ResourceState{
				resource(s1, ipc.KindSharedMemory, []ipc.HolderState{held(x, ipc.ModeRead)}, []ipc.WaiterState{waiting(y, ipc.ModeRead)}),
				resource(s2, ipc.KindSharedMemory, []ipc.HolderState{held(y, ipc.ModeRead)}, []ipc.WaiterState{waiting(x, ipc.ModeRead)}),
			}},
		},
		{
			name: "writer parked behind writer endpoint only",
			snap: ipc.Snapshot{Resources: []ipc.ResourceState{
				resource(s1, ipc.KindPipe, []ipc.HolderState{held(y, ipc.ModeWrite)}, []ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
				resource(s2, ipc.KindPipe, []ipc.HolderState{held(x, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeWrite)}),
			}},
		},
		{
			name: "empty",
			snap: ipc.Snapshot{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Detect(tt.snap))
		})
	}
}

func TestDetectExclusiveReads(t *testing.T) {
	snap := ipc.Snapshot{Resources: []ipc.ResourceState{
		{ID: s1, Kind: ipc.KindSharedMemory, Config: ipc.Config{ExclusiveReads: true},
			Holders: []ipc.HolderState{held(x, ipc.ModeRead)}, Waiters: []ipc.WaiterState{waiting(y, ipc.ModeRead)}},
		{ID: s2, Kind: ipc.KindSharedMemory, Config: ipc.Config{ExclusiveReads: true},
			Holders: []ipc.HolderState{held(y, ipc.ModeRead)}, Waiters: []ipc.WaiterState{waiting(x, ipc.ModeRead)}},
	}}
	require.Len(t, Detect(snap), 1)
}

func TestDetectPipeCycle(t *testing.T) {
	// x waits to write into a full pipe y reads; y waits to read from an
	// empty pipe x writes
	snap := ipc.Snapshot{Resources: []ipc.ResourceState{
		resource(s1, ipc.KindPipe, []ipc.HolderState{held(y, ipc.ModeRead)}, []ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
		resource(s2, ipc.KindPipe, []ipc.HolderState{held(x, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeRead)}),
	}}

	reports := Detect(snap)
	require.Len(t, reports, 1)
	assert.Equal(t, []id.ActorID{x, y}, reports[0].Actors)
	assert.Equal(t, []id.ResourceID{s1, s2}, reports[0].Resources)
}

func TestDetectQueueCycle(t *testing.T) {
	snap := ipc.Snapshot{Resources: []ipc.ResourceState{
		resource(s1, ipc.KindQueue, []ipc.HolderState{held(y, ipc.ModeWrite)}, []ipc.WaiterState{waiting(x, ipc.ModeRead)}),
		resource(s2, ipc.KindQueue, []ipc.HolderState{held(z, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeRead)}),
		resource(s3, ipc.KindQueue, []ipc.HolderState{held(x, ipc.ModeWrite)}, []ipc.WaiterState{waiting(z, ipc.ModeRead)}),
	}}

	reports := Detect(snap)
	require.Len(t, reports, 1)
	assert.Equal(t, []id.ActorID{x, y, z}, reports[0].Actors)
	assert.Equal(t, []Step{{x, s1}, {y, s2}, {z, s3}}, reports[0].Cycle)
}

func TestDetectIndependentCycles(t *testing.T) {
	snap := ipc.Snapshot{Resources: []ipc.ResourceState{
		resource(s1, ipc.KindLock, []ipc.HolderState{held(z, ipc.ModeWrite)}, []ipc.WaiterState{waiting(w, ipc.ModeWrite)}),
		resource(s2, ipc.KindLock, []ipc.HolderState{held(w, ipc.ModeWrite)}, []ipc.WaiterState{waiting(z, ipc.ModeWrite)}),
		resource(20, ipc.KindLock, []ipc.HolderState{held(x, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeWrite)}),
		resource(21, ipc.KindLock, []ipc.HolderState{held(y, ipc.ModeWrite)}, []ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
	}}

	reports := Detect(snap)
	require.Len(t, reports, 2)
	assert.Equal(t, []id.ActorID{x, y}, reports[0].Actors)
	assert.Equal(t, []id.ActorID{z, w}, reports[1].Actors)
}

func TestDetectBlockedOutsideCycle(t *testing.T) {
	snap := ipc.Snapshot{Resources: []ipc.ResourceState{
		resource(s1, ipc.KindLock, []ipc.HolderState{held(x, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeWrite), waiting(z, ipc.ModeWrite)}),
		resource(s2, ipc.KindLock, []ipc.HolderState{held(y, ipc.ModeWrite)}, []ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
	}}

	reports := Detect(snap)
	require.Len(t, reports, 1)
	assert.Equal(t, []id.ActorID{x, y}, reports[0].Actors)
	assert.Equal(t, []id.ActorID{z}, reports[0].Blocked)
}

func TestDetectIsDeterministic(t *testing.T) {
	snap := ipc.Snapshot{Resources: []ipc.ResourceState{
		resource(s3, ipc.KindLock, []ipc.HolderState{held(z, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeWrite)}),
		resource(s1, ipc.KindLock, []ipc.HolderState{held(x, ipc.ModeWrite)}, []ipc.WaiterState{waiting(z, ipc.ModeWrite)}),
		resource(s2, ipc.KindLock, []ipc.HolderState{held(y, ipc.ModeWrite)}, []ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
	}}

	first := Detect(snap)
	require.Len(t, first, 1)
	for range 10 {
		assert.Equal(t, first, Detect(snap))
	}
	assert.Equal(t, x, first[0].Cycle[0].Actor)
}

func TestGraph(t *testing.T) {
	snap := ipc.Snapshot{AsOf: 7, Resources: []ipc.ResourceState{
		resource(s1, ipc.KindLock, []ipc.HolderState{held(y, ipc.ModeWrite)}, []ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
		resource(s2, ipc.KindLock, []ipc.HolderState{held(z, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeWrite)}),
	}}

	gr := Build(snap)
	assert.Equal(t, uint64(7), gr.AsOf)
	assert.Equal(t, 2, gr.Len())
	assert.Equal(t, []id.ActorID{x, y, z}, gr.Actors())
	assert.Equal(t, []id.ActorID{y}, gr.Successors(x))
	assert.Equal(t, []id.ResourceID{s1}, gr.Via(x, y))
	assert.True(t, gr.Reaches(x, z))
	assert.False(t, gr.Reaches(z, x))
	assert.False(t, gr.Reaches(w, x))
}

func TestDetectLiveLocks(t *testing.T) {
	log := events.NewLog(0)
	rt := ipc.NewRuntime(log)
	l1 := ipc.NewLock(rt, 1, "l1", ipc.Config{})
	l2 := ipc.NewLock(rt, 2, "l2", ipc.Config{})
	a, b := ipc.NewActor(1, "a"), ipc.NewActor(2, "b")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, l1.Acquire(ctx, a))
	require.NoError(t, l2.Acquire(ctx, b))
	go func() { _ = l2.Acquire(ctx, a) }()
	go func() { _ = l1.Acquire(ctx, b) }()

	snapshot := func() ipc.Snapshot { return rt.Snapshot([]ipc.Resource{l1, l2}) }
	require.Eventually(t, func() bool { return len(Detect(snapshot())) == 1 }, 2*time.Second, time.Millisecond)

	d := New(snapshot, log, WithHistory(2))
	reports := d.RunOnce()
	require.Len(t, reports, 1)
	assert.True(t, id.IsValid(string(reports[0].ID)))
	assert.Equal(t, []id.ResourceID{1, 2}, reports[0].Resources)

	tail := log.Tail(1)
	require.Len(t, tail, 1)
	assert.Equal(t, events.KindDeadlockDetected, tail[0].Kind)
	require.NotNil(t, tail[0].Deadlock)
	assert.Equal(t, reports[0].ID, tail[0].Deadlock.ReportID)
	assert.Equal(t, []id.ActorID{1, 2}, tail[0].Deadlock.Actors)
}

func TestDetectorTickDeduplicates(t *testing.T) {
	log := events.NewLog(0)
	snap := ipc.Snapshot{Resources: []ipc.ResourceState{
		resource(s1, ipc.KindLock, []ipc.HolderState{held(x, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeWrite)}),
		resource(s2, ipc.KindLock, []ipc.HolderState{held(y, ipc.ModeWrite)}, []ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
	}}
	current := snap
	var observed []Report
	d := New(func() ipc.Snapshot { return current }, log, WithObserver(func(r Report) {
		observed = append(observed, r)
	}))

	assert.Len(t, d.tick(), 1)
	assert.Empty(t, d.tick())
	assert.Len(t, observed, 1)

	current = ipc.Snapshot{}
	assert.Empty(t, d.tick())
	current = snap
	assert.Len(t, d.tick(), 1, "a cycle that reappears is reported again")
	assert.Equal(t, uint64(4), d.Runs())
	assert.Len(t, d.Reports(0), 2)
}

func TestDetectorHistory(t *testing.T) {
	snap := ipc.Snapshot{Resources: []ipc.ResourceState{
		resource(s1, ipc.KindLock, []ipc.HolderState{held(x, ipc.ModeWrite)}, []ipc.WaiterState{waiting(y, ipc.ModeWrite)}),
		resource(s2, ipc.KindLock, []ipc.HolderState{held(y, ipc.ModeWrite)}, []ipc.WaiterState{waiting(x, ipc.ModeWrite)}),
	}}
	d := New(func() ipc.Snapshot { return snap }, events.NewLog(0), WithHistory(3))

	var ids []id.ReportID
	for range 5 {
		ids = append(ids, d.RunOnce()[0].ID)
	}

	got := d.Reports(0)
	require.Len(t, got, 3)
	assert.Equal(t, ids[4], got[0].ID, "newest first")
	assert.Equal(t, ids[2], got[2].ID)
	assert.Len(t, d.Reports(1), 1)

	d.Reset()
	assert.Empty(t, d.Reports(0))
}

func TestDetectorRunStops(t *testing.T) {
	d := New(func() ipc.Snapshot { return ipc.Snapshot{} }, events.NewLog(0), WithInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.Eventually(t, func() bool { return d.Runs() >= 2 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
