package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regionprof/internal/cycles"
	"regionprof/internal/registry"
)

func newTestContext(t *testing.T, start cycles.Ticks) (*Context, *registry.Slot) {
	t.Helper()
	r := registry.New()
	slot, ok := r.AllocateSlot(1, start)
	require.True(t, ok)
	return New(slot, start), slot
}

// stateSum adds up all four per-state accumulators.
func stateSum(s *registry.Slot) uint64 {
	var sum uint64
	for st := registry.State(0); st < registry.NumStates; st++ {
		sum += s.StateTicks(st)
	}
	return sum
}

func TestTaggedWithNestedExternal(t *testing.T) {
	// Thread enters Tagged, works 20 ticks, calls external (from tagged)
	// for 40 ticks, returns, works 30 more tagged ticks, exits.
	c, slot := newTestContext(t, 0)

	c.EnterTagged(10)
	c.EnterExternal(30)
	c.ExitExternal(70)
	c.ExitTagged(100)
	c.Finalize(130)

	assert.Equal(t, uint64(10+30), slot.StateTicks(registry.Normal))
	assert.Equal(t, uint64(20+30), slot.StateTicks(registry.Tagged))
	assert.Equal(t, uint64(40), slot.StateTicks(registry.ExternalFromTagged))
	assert.Zero(t, slot.StateTicks(registry.ExternalFromNormal))

	assert.Equal(t, uint64(1), slot.TaggedEntries())
	assert.Equal(t, uint64(1), slot.ExternalCalls())
	assert.Equal(t, registry.Terminated, slot.Lifecycle())
}

func TestAccumulatorsAreDisjointAndExhaustive(t *testing.T) {
	// For any well-nested sequence, the four accumulators sum to the
	// thread's total observed lifetime, with no gaps or double counting.
	c, slot := newTestContext(t, 0)

	c.EnterTagged(5)
	c.EnterExternal(11)
	c.ExitExternal(23)
	c.ExitTagged(31)
	c.EnterExternal(40)
	c.EnterTagged(41) // external-from-normal -> external-from-tagged
	c.ExitTagged(55)
	c.ExitExternal(60)
	c.Finalize(100)

	assert.Equal(t, uint64(100), stateSum(slot))
	assert.Equal(t, slot.LastTicks()-slot.StartTicks(), cycles.Ticks(stateSum(slot)))
}

func TestNestedTaggedIsNoOp(t *testing.T) {
	c, slot := newTestContext(t, 0)

	c.EnterTagged(10)
	c.EnterTagged(20) // already tagged: no-op, no double entry
	c.ExitTagged(30)
	c.ExitTagged(40) // already normal: no-op
	c.Finalize(50)

	assert.Equal(t, uint64(1), slot.TaggedEntries())
	assert.Equal(t, uint64(20), slot.StateTicks(registry.Tagged))
	assert.Equal(t, uint64(30), slot.StateTicks(registry.Normal))
	assert.Equal(t, uint64(50), stateSum(slot))
}

func TestExternalFromTaggedStateTransitions(t *testing.T) {
	c, _ := newTestContext(t, 0)

	c.EnterTagged(10)
	assert.Equal(t, registry.Tagged, c.TopState())

	c.EnterExternal(20)
	assert.Equal(t, registry.ExternalFromTagged, c.TopState())
	assert.Equal(t, 1, c.Depth())

	// Tagged transitions inside an external frame flip between the two
	// external states.
	c.ExitTagged(25)
	assert.Equal(t, registry.ExternalFromNormal, c.TopState())
	c.EnterTagged(28)
	assert.Equal(t, registry.ExternalFromTagged, c.TopState())

	c.ExitExternal(30)
	assert.Equal(t, registry.Tagged, c.TopState())
	assert.Equal(t, 0, c.Depth())
}

func TestExitExternalOnBaselineIsNoOp(t *testing.T) {
	c, slot := newTestContext(t, 0)

	c.ExitExternal(10) // frame 0 is never popped
	assert.Equal(t, 0, c.Depth())

	c.Finalize(20)
	assert.Equal(t, uint64(20), slot.StateTicks(registry.Normal))
}

func TestStackOverflowDegrades(t *testing.T) {
	c, slot := newTestContext(t, 0)

	now := cycles.Ticks(0)
	for i := 0; i < MaxDepth+10; i++ {
		now += 10
		c.EnterExternal(now)
	}
	assert.Equal(t, MaxDepth-1, c.Depth())
	assert.Equal(t, uint64(11), c.Overflows())
	assert.Equal(t, uint64(MaxDepth-1), slot.ExternalCalls())

	// Unwinding stays balanced: the dropped enters consume their exits
	// before any real frame is popped.
	for i := 0; i < MaxDepth+10; i++ {
		now += 10
		c.ExitExternal(now)
	}
	assert.Equal(t, 0, c.Depth())
	assert.Equal(t, registry.Normal, c.TopState())

	c.Finalize(now + 5)
	assert.Equal(t, uint64(now+5), stateSum(slot))
}

func TestUntrackedContextIsNoOp(t *testing.T) {
	c := New(nil, 0)
	assert.False(t, c.Tracked())

	// Every operation must be safe on an untracked context.
	c.EnterTagged(1)
	c.EnterExternal(2)
	c.ExitExternal(3)
	c.ExitTagged(4)
	c.Finalize(5)
	assert.Equal(t, 0, c.Depth())
}

func TestOpenRegionChargedAtFinalize(t *testing.T) {
	// A region that never calls its matching exit stays open until thread
	// finalization attributes the remaining time.
	c, slot := newTestContext(t, 0)

	c.EnterTagged(10)
	c.Finalize(60)

	assert.Equal(t, uint64(50), slot.StateTicks(registry.Tagged))
	assert.Equal(t, uint64(10), slot.StateTicks(registry.Normal))
	assert.Equal(t, registry.Terminated, slot.Lifecycle())
}
