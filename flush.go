package regionprof

import (
	"fmt"
	"strings"

	"regionprof/internal/cycles"
	"regionprof/internal/report"
)

// Report file names, one per subsystem.
const (
	CycleStatFile    = "cpu_cycle.stat"
	HeapStatFile     = "heap_stat.stat"
	CoverageStatFile = "tagged_coverage.stat"
	FuncStatFile     = "tagged_funcs.stat"
)

// FlushReports aggregates all subsystems and appends one report block per
// enabled subsystem to its .stat file. Exactly one call per process (or per
// Reset) performs the write; later calls are no-ops. Instrumented programs
// call it at termination, typically via defer in main.
func FlushReports() {
	s := current()
	if s.flushed.Swap(true) {
		return
	}

	blocks := make(map[string]string, 4)
	if s.cfg.Trackers.Cycles {
		blocks[CycleStatFile] = s.cycleBlock(cycles.Now())
	}
	if s.cfg.Trackers.Heap {
		blocks[HeapStatFile] = s.heapBlock()
	}
	if s.cfg.Trackers.Coverage {
		blocks[CoverageStatFile] = s.coverageBlock()
	}
	if s.cfg.Trackers.FuncStats {
		blocks[FuncStatFile] = s.funcBlock()
	}

	w := report.NewWriter(report.ResolveDir(s.cfg.Output.Directory))
	// Report writing allocates; keep those allocations out of the heap
	// tracker's own books.
	s.heap.WithoutTracking(func() {
		w.AppendAll(blocks)
	})
}

func (s *runtimeState) cycleBlock(now cycles.Ticks) string {
	t := s.registry.Aggregate(now)

	var b strings.Builder
	fmt.Fprintf(&b, "===== CPU Cycle Statistics =====\n")
	fmt.Fprintf(&b, "Total cycles: %d\n", t.TotalTicks)
	fmt.Fprintf(&b, "Tagged cycles: %d\n", t.TaggedTicks)
	fmt.Fprintf(&b, "External cycles: %d\n", t.ExternalTicks)
	fmt.Fprintf(&b, "Internal cycles: %d\n", t.InternalTicks)
	fmt.Fprintf(&b, "Tagged percentage: %.2f\n", t.TaggedPercent)
	fmt.Fprintf(&b, "Tagged entries: %d\n", t.TaggedEntries)
	fmt.Fprintf(&b, "External calls: %d\n", t.ExternalCalls)
	fmt.Fprintf(&b, "Threads observed: %d\n", t.ActiveThreads+t.TerminatedThreads)
	fmt.Fprintf(&b, "Threads dropped: %d", t.DroppedThreads)
	return b.String()
}

func (s *runtimeState) heapBlock() string {
	hs := s.heap.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "===== Heap Usage Statistics =====\n")
	fmt.Fprintf(&b, "Total heap usage: %d bytes\n", hs.TotalUsage)
	fmt.Fprintf(&b, "Total heap allocations: %d\n", hs.TotalAllocs)
	fmt.Fprintf(&b, "Total heap re-allocations: %d\n", hs.TotalReallocs)
	fmt.Fprintf(&b, "Total heap deallocations: %d\n", hs.TotalDeallocs)
	fmt.Fprintf(&b, "Tagged heap memory: %d\n", hs.TaggedBytes)
	fmt.Fprintf(&b, "Tagged heap objects: %d\n", hs.TaggedObjects)
	fmt.Fprintf(&b, "Tagged memory instructions: %d\n", hs.TaggedLoads+hs.TaggedStores)
	fmt.Fprintf(&b, "Tagged load: %d\n", hs.TaggedLoads)
	fmt.Fprintf(&b, "Tagged store: %d\n", hs.TaggedStores)
	fmt.Fprintf(&b, "Size histogram: %s\n", histogramLine(hs.SizeHistogram[:]))
	fmt.Fprintf(&b, "Tagged size histogram: %s", histogramLine(hs.TaggedSizeHistogram[:]))
	return b.String()
}

func (s *runtimeState) coverageBlock() string {
	var b strings.Builder
	fmt.Fprintf(&b, "===== Tagged Coverage Statistics =====\n")
	fmt.Fprintf(&b, "Run: %d\n", s.coverage.NextRun())
	fmt.Fprintf(&b, "Registered lines: %d\n", s.coverage.RegisteredCount())
	fmt.Fprintf(&b, "Executed lines: %d\n", s.coverage.ExecutedCount())
	fmt.Fprintf(&b, "Coverage percentage: %.2f", s.coverage.Percentage())
	return b.String()
}

func (s *runtimeState) funcBlock() string {
	fs := s.funcstats.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "===== Tagged Function Statistics =====\n")
	fmt.Fprintf(&b, "Total instructions: %d\n", fs.TotalInstructions)
	fmt.Fprintf(&b, "Tagged instructions: %d\n", fs.TaggedInstructions)
	fmt.Fprintf(&b, "Tagged loads: %d\n", fs.Loads)
	fmt.Fprintf(&b, "Tagged stores: %d\n", fs.Stores)
	fmt.Fprintf(&b, "Tagged calls: %d\n", fs.Calls)
	fmt.Fprintf(&b, "Tagged conversions: %d\n", fs.Conversions)
	fmt.Fprintf(&b, "Tagged index operations: %d\n", fs.IndexOps)
	fmt.Fprintf(&b, "Tagged others: %d\n", fs.Others)
	fmt.Fprintf(&b, "Unique functions: %d\n", fs.UniqueFunctions)
	fmt.Fprintf(&b, "Unique tagged functions: %d\n", fs.UniqueTaggedFunctions)
	fmt.Fprintf(&b, "Total function calls: %d\n", fs.TotalCalls)
	fmt.Fprintf(&b, "Tagged function calls: %d\n", fs.TaggedCalls)
	fmt.Fprintf(&b, "Dropped function IDs: %d", fs.DroppedFunctions)
	return b.String()
}

// histogramLine formats bucket counts as "a; b; c".
func histogramLine(buckets []uint64) string {
	parts := make([]string, len(buckets))
	for i, v := range buckets {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, "; ")
}
