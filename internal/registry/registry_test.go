package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regionprof/internal/cycles"
)

func TestAllocateSlot(t *testing.T) {
	r := New()

	s, ok := r.AllocateSlot(42, 100)
	require.True(t, ok)
	assert.Equal(t, Active, s.Lifecycle())
	assert.Equal(t, uint64(42), s.ThreadID())
	assert.Equal(t, cycles.Ticks(100), s.StartTicks())
	assert.Equal(t, 1, r.HighWater())

	s2, ok := r.AllocateSlot(43, 110)
	require.True(t, ok)
	assert.NotSame(t, s, s2)
	assert.Equal(t, 2, r.HighWater())
}

func TestSlotReuseZeroesCounters(t *testing.T) {
	r := New()

	a, ok := r.AllocateSlot(1, 10)
	require.True(t, ok)
	a.AddTicks(Tagged, 500)
	a.IncTaggedEntries()
	a.IncExternalCalls()
	a.Finalize(900)
	require.Equal(t, Terminated, a.Lifecycle())

	// The next thread must win the Terminated slot and see zeroed counters.
	b, ok := r.AllocateSlot(2, 1000)
	require.True(t, ok)
	assert.Same(t, a, b)
	assert.Equal(t, 1, r.HighWater())
	assert.Equal(t, Active, b.Lifecycle())
	assert.Equal(t, uint64(2), b.ThreadID())
	assert.Equal(t, cycles.Ticks(1000), b.StartTicks())
	for st := State(0); st < NumStates; st++ {
		assert.Zero(t, b.StateTicks(st), st.String())
	}
	assert.Zero(t, b.TaggedEntries())
	assert.Zero(t, b.ExternalCalls())
}

func TestCapacityExhaustion(t *testing.T) {
	r := New()

	for i := 0; i < Capacity; i++ {
		_, ok := r.AllocateSlot(uint64(i), 0)
		require.True(t, ok, "slot %d", i)
	}

	// Slot Capacity+1 must be refused, reported as dropped, and not fatal.
	s, ok := r.AllocateSlot(9999, 0)
	assert.False(t, ok)
	assert.Nil(t, s)
	assert.Equal(t, uint64(1), r.Dropped())
	assert.Equal(t, Capacity, r.HighWater())

	// Terminating one thread makes its slot claimable again.
	r.slots[7].Finalize(50)
	s, ok = r.AllocateSlot(10000, 60)
	require.True(t, ok)
	assert.Same(t, &r.slots[7], s)
}

func TestConcurrentAllocation(t *testing.T) {
	r := New()
	const n = 64

	var wg sync.WaitGroup
	slots := make([]*Slot, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, ok := r.AllocateSlot(uint64(i), 0)
			require.True(t, ok)
			slots[i] = s
		}(i)
	}
	wg.Wait()

	seen := make(map[*Slot]bool, n)
	for _, s := range slots {
		assert.False(t, seen[s], "slot claimed twice")
		seen[s] = true
	}
	assert.Equal(t, n, r.HighWater())
}

func TestAggregate(t *testing.T) {
	r := New()

	// Terminated thread: 10..110, 40 tagged, 20 external-from-tagged.
	a, _ := r.AllocateSlot(1, 10)
	a.AddTicks(Normal, 40)
	a.AddTicks(Tagged, 40)
	a.AddTicks(ExternalFromTagged, 20)
	a.IncTaggedEntries()
	a.IncExternalCalls()
	a.Finalize(110)

	// Active thread: started at 100, still running at now=200.
	b, _ := r.AllocateSlot(2, 100)
	b.AddTicks(Tagged, 30)

	totals := r.Aggregate(200)
	assert.Equal(t, uint64(100+100), totals.TotalTicks)
	assert.Equal(t, uint64(70), totals.TaggedTicks)
	assert.Equal(t, uint64(20), totals.ExternalTicks)
	assert.Equal(t, uint64(180), totals.InternalTicks)
	assert.InDelta(t, float64(70)/180*100, totals.TaggedPercent, 0.001)
	assert.Equal(t, uint64(1), totals.ActiveThreads)
	assert.Equal(t, uint64(1), totals.TerminatedThreads)
	assert.Equal(t, uint64(1), totals.TaggedEntries)
	assert.Equal(t, uint64(1), totals.ExternalCalls)
	assert.Zero(t, totals.SkippedSlots)
}

func TestAggregateSkipsInconsistentSlot(t *testing.T) {
	r := New()

	// Tagged ticks exceed the slot's total observed lifetime: excluded.
	bad, _ := r.AllocateSlot(1, 100)
	bad.AddTicks(Tagged, 1000)
	bad.Finalize(150)

	good, _ := r.AllocateSlot(2, 0)
	good.AddTicks(Tagged, 10)
	good.Finalize(100)

	totals := r.Aggregate(200)
	assert.Equal(t, uint64(1), totals.SkippedSlots)
	assert.Equal(t, uint64(100), totals.TotalTicks)
	assert.Equal(t, uint64(10), totals.TaggedTicks)
	assert.Equal(t, uint64(1), totals.TerminatedThreads)
}
