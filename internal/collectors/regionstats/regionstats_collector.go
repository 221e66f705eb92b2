// Package regionstats exposes the runtime's attribution state as Prometheus
// metrics.
//
// The collector reads the registry and heap tracker on every scrape; nothing
// is cached between scrapes, so the values are always a consistent snapshot
// of the counters at collection time.
package regionstats

import (
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"regionprof/internal/cycles"
	"regionprof/internal/heaptrack"
	"regionprof/internal/logger"
	"regionprof/internal/registry"
)

// Collector implements prometheus.Collector over the thread registry and
// heap tracker.
type Collector struct {
	registry *registry.Registry
	heap     *heaptrack.Tracker
	log      log.Logger

	threadsActiveDesc     *prometheus.Desc
	threadsTerminatedDesc *prometheus.Desc
	threadsDroppedDesc    *prometheus.Desc
	stateTicksDesc        *prometheus.Desc
	taggedEntriesDesc     *prometheus.Desc
	externalCallsDesc     *prometheus.Desc
	skippedSlotsDesc      *prometheus.Desc

	heapUsageDesc        *prometheus.Desc
	heapOpsDesc          *prometheus.Desc
	taggedObjectsDesc    *prometheus.Desc
	taggedBytesDesc      *prometheus.Desc
	taggedAccessesDesc   *prometheus.Desc
	liveObjectsDesc      *prometheus.Desc
	heapAccessChecksDesc *prometheus.Desc
}

// NewCollector creates a collector over the given registry and heap tracker.
func NewCollector(reg *registry.Registry, heap *heaptrack.Tracker) *Collector {
	c := &Collector{
		registry: reg,
		heap:     heap,
		log:      logger.NewLoggerWithContext("regionstats_collector"),
	}

	c.threadsActiveDesc = prometheus.NewDesc(
		"regionprof_threads_active",
		"Threads currently registered and running.",
		nil, nil)
	c.threadsTerminatedDesc = prometheus.NewDesc(
		"regionprof_threads_terminated_total",
		"Threads that registered and have since terminated.",
		nil, nil)
	c.threadsDroppedDesc = prometheus.NewDesc(
		"regionprof_threads_dropped_total",
		"Threads refused registration because the slot table was full.",
		nil, nil)
	c.stateTicksDesc = prometheus.NewDesc(
		"regionprof_state_nanoseconds_total",
		"Execution time attributed to each execution state, across all threads.",
		[]string{"state"}, nil)
	c.taggedEntriesDesc = prometheus.NewDesc(
		"regionprof_tagged_entries_total",
		"Baseline-to-tagged region transitions across all threads.",
		nil, nil)
	c.externalCallsDesc = prometheus.NewDesc(
		"regionprof_external_calls_total",
		"External call frames entered across all threads.",
		nil, nil)
	c.skippedSlotsDesc = prometheus.NewDesc(
		"regionprof_aggregation_skipped_slots",
		"Slots excluded from the last aggregation due to inconsistent counters.",
		nil, nil)

	c.heapUsageDesc = prometheus.NewDesc(
		"regionprof_heap_usage_bytes",
		"Cumulative bytes of tracked heap allocations.",
		nil, nil)
	c.heapOpsDesc = prometheus.NewDesc(
		"regionprof_heap_operations_total",
		"Tracked heap operations by kind.",
		[]string{"kind"}, nil)
	c.taggedObjectsDesc = prometheus.NewDesc(
		"regionprof_tagged_objects_total",
		"Heap objects promoted to the tagged set.",
		nil, nil)
	c.taggedBytesDesc = prometheus.NewDesc(
		"regionprof_tagged_bytes_total",
		"Bytes of heap objects promoted to the tagged set.",
		nil, nil)
	c.taggedAccessesDesc = prometheus.NewDesc(
		"regionprof_tagged_accesses_total",
		"Memory accesses landing in tagged heap objects, by direction.",
		[]string{"direction"}, nil)
	c.liveObjectsDesc = prometheus.NewDesc(
		"regionprof_live_objects",
		"Objects currently present in the live-object index.",
		nil, nil)
	c.heapAccessChecksDesc = prometheus.NewDesc(
		"regionprof_heap_access_checks_total",
		"Pointer classifications performed against the live-object index.",
		nil, nil)

	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.threadsActiveDesc
	ch <- c.threadsTerminatedDesc
	ch <- c.threadsDroppedDesc
	ch <- c.stateTicksDesc
	ch <- c.taggedEntriesDesc
	ch <- c.externalCallsDesc
	ch <- c.skippedSlotsDesc
	ch <- c.heapUsageDesc
	ch <- c.heapOpsDesc
	ch <- c.taggedObjectsDesc
	ch <- c.taggedBytesDesc
	ch <- c.taggedAccessesDesc
	ch <- c.liveObjectsDesc
	ch <- c.heapAccessChecksDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	totals := c.registry.Aggregate(cycles.Now())

	ch <- prometheus.MustNewConstMetric(
		c.threadsActiveDesc, prometheus.GaugeValue, float64(totals.ActiveThreads))
	ch <- prometheus.MustNewConstMetric(
		c.threadsTerminatedDesc, prometheus.CounterValue, float64(totals.TerminatedThreads))
	ch <- prometheus.MustNewConstMetric(
		c.threadsDroppedDesc, prometheus.CounterValue, float64(totals.DroppedThreads))
	for s := registry.Normal; s < registry.NumStates; s++ {
		ch <- prometheus.MustNewConstMetric(
			c.stateTicksDesc, prometheus.CounterValue,
			float64(cycles.ToNanoseconds(cycles.Ticks(totals.StateTicks[s]))),
			s.String())
	}
	ch <- prometheus.MustNewConstMetric(
		c.taggedEntriesDesc, prometheus.CounterValue, float64(totals.TaggedEntries))
	ch <- prometheus.MustNewConstMetric(
		c.externalCallsDesc, prometheus.CounterValue, float64(totals.ExternalCalls))
	ch <- prometheus.MustNewConstMetric(
		c.skippedSlotsDesc, prometheus.GaugeValue, float64(totals.SkippedSlots))

	hs := c.heap.Snapshot()
	ch <- prometheus.MustNewConstMetric(
		c.heapUsageDesc, prometheus.CounterValue, float64(hs.TotalUsage))
	ch <- prometheus.MustNewConstMetric(
		c.heapOpsDesc, prometheus.CounterValue, float64(hs.TotalAllocs), "alloc")
	ch <- prometheus.MustNewConstMetric(
		c.heapOpsDesc, prometheus.CounterValue, float64(hs.TotalReallocs), "realloc")
	ch <- prometheus.MustNewConstMetric(
		c.heapOpsDesc, prometheus.CounterValue, float64(hs.TotalDeallocs), "dealloc")
	ch <- prometheus.MustNewConstMetric(
		c.taggedObjectsDesc, prometheus.CounterValue, float64(hs.TaggedObjects))
	ch <- prometheus.MustNewConstMetric(
		c.taggedBytesDesc, prometheus.CounterValue, float64(hs.TaggedBytes))
	ch <- prometheus.MustNewConstMetric(
		c.taggedAccessesDesc, prometheus.CounterValue, float64(hs.TaggedLoads), "load")
	ch <- prometheus.MustNewConstMetric(
		c.taggedAccessesDesc, prometheus.CounterValue, float64(hs.TaggedStores), "store")
	ch <- prometheus.MustNewConstMetric(
		c.liveObjectsDesc, prometheus.GaugeValue, float64(hs.LiveObjects))
	ch <- prometheus.MustNewConstMetric(
		c.heapAccessChecksDesc, prometheus.CounterValue, float64(hs.HeapAccesses))

	c.log.Debug().Msg("Collected region statistics")
}
