package regionstats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regionprof/internal/cycles"
	"regionprof/internal/heaptrack"
	"regionprof/internal/registry"
)

func TestCollectorGathers(t *testing.T) {
	reg := registry.New()
	heap := heaptrack.New()

	slot, ok := reg.AllocateSlot(1, cycles.Ticks(100))
	require.True(t, ok)
	slot.AddTicks(registry.Tagged, 40)
	slot.IncTaggedEntries()

	buf := heap.Alloc(2048)
	heap.AccessTagged(uintptr(0), false) // miss, no promotion
	_ = buf

	c := NewCollector(reg, heap)
	promReg := prometheus.NewPedanticRegistry()
	require.NoError(t, promReg.Register(c))

	families, err := promReg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["regionprof_threads_active"])
	assert.True(t, names["regionprof_state_nanoseconds_total"])
	assert.True(t, names["regionprof_heap_usage_bytes"])
	assert.True(t, names["regionprof_tagged_accesses_total"])
	assert.True(t, names["regionprof_live_objects"])
}

func TestCollectorValues(t *testing.T) {
	reg := registry.New()
	heap := heaptrack.New()

	slot, ok := reg.AllocateSlot(7, cycles.Ticks(0))
	require.True(t, ok)
	slot.IncTaggedEntries()
	slot.IncTaggedEntries()

	_ = heap.Alloc(512)
	_ = heap.Alloc(512)

	c := NewCollector(reg, heap)
	assert.Equal(t, 15, testutil.CollectAndCount(c,
		"regionprof_threads_active",
		"regionprof_threads_terminated_total",
		"regionprof_threads_dropped_total",
		"regionprof_state_nanoseconds_total",
		"regionprof_tagged_entries_total",
		"regionprof_external_calls_total",
		"regionprof_aggregation_skipped_slots",
		"regionprof_heap_usage_bytes",
		"regionprof_heap_operations_total",
		"regionprof_live_objects"))
}
