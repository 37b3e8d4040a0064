package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

func TestAppendAssignsLogicalClock(t *testing.T) {
	log := NewLog(0)

	first := log.Append(Entry{Kind: KindAcquired, Actor: 1, Resource: 1})
	second := log.Append(Entry{Kind: KindReleased, Actor: 1, Resource: 1})

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.False(t, first.Time.IsZero())
	assert.Equal(t, uint64(2), log.Last())
	assert.Equal(t, 2, log.Len())
}

func TestConcurrentAppendsAreTotallyOrdered(t *testing.T) {
	log := NewLog(0)

	const writers = 10
	const perWriter = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(actor id.ActorID) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				log.Append(Entry{Kind: KindMutated, Actor: actor})
			}
		}(id.ActorID(w + 1))
	}
	wg.Wait()

	var prev uint64
	count := 0
	for e := range log.Entries(0) {
		assert.Equal(t, prev+1, e.Seq, "sequence must have no gaps")
		prev = e.Seq
		count++
	}
	assert.Equal(t, writers*perWriter, count)
}

func TestEntriesIsRestartable(t *testing.T) {
	log := NewLog(0)
	for i := 0; i < 5; i++ {
		log.Append(Entry{Kind: KindMutated, Level: int64(i)})
	}

	seq := log.Entries(3)

	var firstPass, secondPass []uint64
	for e := range seq {
		firstPass = append(firstPass, e.Seq)
	}
	log.Append(Entry{Kind: KindMutated})
	for e := range seq {
		secondPass = append(secondPass, e.Seq)
	}

	assert.Equal(t, []uint64{3, 4, 5}, firstPass)
	assert.Equal(t, []uint64{3, 4, 5, 6}, secondPass)
}

func TestRetentionDropsOldest(t *testing.T) {
	log := NewLog(3)
	for i := 0; i < 10; i++ {
		log.Append(Entry{Kind: KindMutated})
	}

	assert.Equal(t, 3, log.Len())
	assert.Equal(t, uint64(8), log.First())

	got := log.Range(0, 0)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(8), got[0].Seq)
	assert.Equal(t, uint64(10), got[2].Seq)
}

func TestTail(t *testing.T) {
	log := NewLog(0)
	for i := 0; i < 5; i++ {
		log.Append(Entry{Kind: KindMutated})
	}

	tail := log.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(4), tail[0].Seq)
	assert.Equal(t, uint64(5), tail[1].Seq)

	assert.Len(t, log.Tail(0), 5)
	assert.Len(t, log.Tail(50), 5)
}

func TestSubscriptionFollowsTail(t *testing.T) {
	log := NewLog(0)
	log.Append(Entry{Kind: KindCreated})

	sub := log.Subscribe(0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	e, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindCreated, e.Kind)

	got := make(chan Entry, 1)
	go func() {
		e, err := sub.Next(ctx)
		if err == nil {
			got <- e
		}
	}()

	time.Sleep(20 * time.Millisecond)
	log.Append(Entry{Kind: KindAcquired})

	select {
	case e := <-got:
		assert.Equal(t, KindAcquired, e.Kind)
		assert.Equal(t, uint64(2), e.Seq)
	case <-ctx.Done():
		t.Fatal("subscriber was not woken by append")
	}
}

func TestSubscriptionCountsDropped(t *testing.T) {
	log := NewLog(2)
	sub := log.Subscribe(1)
	for i := 0; i < 5; i++ {
		log.Append(Entry{Kind: KindMutated})
	}

	e, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), e.Seq)
	assert.Equal(t, uint64(3), sub.Dropped())
}

func TestSubscriptionHonorsContext(t *testing.T) {
	log := NewLog(0)
	sub := log.Subscribe(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseReleasesSubscribers(t *testing.T) {
	log := NewLog(0)
	sub := log.Subscribe(1)

	done := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	log.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("subscriber not released on close")
	}
}
