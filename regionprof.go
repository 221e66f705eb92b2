// Package regionprof attributes CPU time and heap memory to tagged code
// regions across concurrent goroutines.
//
// Instrumented code reports region entry/exit, external-call boundaries,
// heap operations and memory accesses through the package-level functions
// here; the runtime keeps per-goroutine execution contexts in a fixed-size
// lock-free registry and accumulates time per execution state at transition
// points. FlushReports writes the aggregated statistics to append-only
// report files exactly once per process.
//
// All entry points are safe for concurrent use and degrade to no-ops for
// goroutines that could not be registered, so instrumentation never takes
// the host program down.
package regionprof

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v4"

	"regionprof/internal/collectors/regionstats"
	"regionprof/internal/config"
	"regionprof/internal/coverage"
	"regionprof/internal/cycles"
	"regionprof/internal/engine"
	"regionprof/internal/funcstats"
	"regionprof/internal/goid"
	"regionprof/internal/heaptrack"
	"regionprof/internal/logger"
	"regionprof/internal/registry"
)

// Ticks is an opaque monotonic time reading, returned by EnterTaggedRegion
// for its matching exit.
type Ticks = cycles.Ticks

// runtimeState bundles everything one profiled process needs. A single
// package-level instance serves the process; Reset swaps in a fresh one for
// tests.
type runtimeState struct {
	cfg       *config.AppConfig
	registry  *registry.Registry
	heap      *heaptrack.Tracker
	coverage  *coverage.Tracker
	funcstats *funcstats.Tracker

	// contexts maps goroutine ID to its execution context. Dropped
	// goroutines get an untracked sentinel context so registration is not
	// retried on every probe.
	contexts *xsync.Map[int64, *engine.Context]

	flushed atomic.Bool
}

func newRuntimeState(cfg *config.AppConfig) *runtimeState {
	return &runtimeState{
		cfg:       cfg,
		registry:  registry.New(),
		heap:      heaptrack.New(),
		coverage:  coverage.New(),
		funcstats: funcstats.New(),
		contexts:  xsync.NewMap[int64, *engine.Context](),
	}
}

var (
	initMu sync.Mutex
	state  atomic.Pointer[runtimeState]
)

// current returns the process runtime state, initializing it with defaults
// on first use.
func current() *runtimeState {
	if s := state.Load(); s != nil {
		return s
	}

	initMu.Lock()
	defer initMu.Unlock()
	if s := state.Load(); s != nil {
		return s
	}
	cfg := config.DefaultConfig()
	logger.Setup(cfg.Logging)
	s := newRuntimeState(cfg)
	state.Store(s)
	return s
}

// Configure loads configuration from the given TOML file (missing file
// means defaults) and applies it. Must be called before any instrumentation
// entry point to take effect; calls after initialization return an error.
func Configure(path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	initMu.Lock()
	defer initMu.Unlock()
	if state.Load() != nil {
		return fmt.Errorf("already initialized, configuration ignored")
	}
	logger.Setup(cfg.Logging)
	state.Store(newRuntimeState(cfg))
	return nil
}

// OnProgramStart registers the calling goroutine, normally the main
// goroutine, with the runtime. Instrumented programs call it first thing in
// main; goroutines that skip it are registered lazily on their first
// instrumentation call.
func OnProgramStart() {
	s := current()
	s.contextFor(goid.Get())
}

// contextFor returns the execution context for a goroutine, registering it
// on first sight. Over-capacity goroutines get a shared untracked context.
func (s *runtimeState) contextFor(id int64) *engine.Context {
	if ctx, ok := s.contexts.Load(id); ok {
		return ctx
	}

	now := cycles.Now()
	slot, _ := s.registry.AllocateSlot(uint64(id), now)
	ctx := engine.New(slot, now) // slot may be nil, yielding a no-op context

	actual, _ := s.contexts.LoadOrStore(id, ctx)
	if actual != ctx && slot != nil {
		// Lost a racing registration for the same goroutine; release ours.
		slot.Finalize(now)
	}
	return actual
}

// EnterTaggedRegion marks the calling goroutine's entry into a tagged
// region and returns the entry reading for the matching exit.
func EnterTaggedRegion() Ticks {
	now := cycles.Now()
	current().contextFor(goid.Get()).EnterTagged(now)
	return now
}

// ExitTaggedRegion marks the exit from a tagged region. entry is the value
// returned by the matching EnterTaggedRegion and is used only to detect
// mismatched pairs.
func ExitTaggedRegion(entry Ticks) {
	now := cycles.Now()
	if entry > now {
		log := logger.NewLoggerWithContext("api")
		log.Warn().
			Uint64("entry", uint64(entry)).
			Uint64("now", uint64(now)).
			Msg("tagged region exit with entry reading from the future")
	}
	current().contextFor(goid.Get()).ExitTagged(now)
}

// EnterExternalCall marks the entry into an uninstrumented callee and
// returns the entry reading for the matching exit.
func EnterExternalCall() Ticks {
	now := cycles.Now()
	current().contextFor(goid.Get()).EnterExternal(now)
	return now
}

// ExitExternalCall marks the return from an uninstrumented callee. entry is
// the value returned by the matching EnterExternalCall and is used only to
// detect mismatched pairs.
func ExitExternalCall(entry Ticks) {
	now := cycles.Now()
	if entry > now {
		log := logger.NewLoggerWithContext("api")
		log.Warn().
			Uint64("entry", uint64(entry)).
			Uint64("now", uint64(now)).
			Msg("external call exit with entry reading from the future")
	}
	current().contextFor(goid.Get()).ExitExternal(now)
}

// OnHeapAccess classifies a pointer against the live-object index and
// reports whether it lies inside a tracked heap object.
func OnHeapAccess(ptr uintptr) bool {
	return current().heap.AccessRegion(ptr)
}

// OnTaggedHeapAccess records a memory access made by tagged code. If the
// pointer lies in a tracked object that has not been promoted yet, the
// object joins the tagged set.
func OnTaggedHeapAccess(ptr uintptr, isLoad bool) {
	current().heap.AccessTagged(ptr, isLoad)
}

// Alloc allocates a tracked buffer.
func Alloc(size int) []byte {
	return current().heap.Alloc(size)
}

// Free releases a tracked buffer from the live-object index.
func Free(buf []byte) {
	current().heap.Free(buf)
}

// Realloc resizes a tracked buffer, preserving its contents.
func Realloc(buf []byte, newSize int) []byte {
	return current().heap.Realloc(buf, newSize)
}

// RecordAllocation registers an externally allocated object with the
// live-object index.
func RecordAllocation(base, size uintptr) {
	current().heap.Record(base, size)
}

// RecordFree removes an externally freed object from the live-object index.
func RecordFree(base uintptr) {
	current().heap.Remove(base)
}

// RecordReallocation reports an externally reallocated object, which may
// have moved.
func RecordReallocation(oldBase, oldSize, newBase, newSize uintptr) {
	current().heap.Reallocated(oldBase, oldSize, newBase, newSize)
}

// RegisterTaggedLine records a tagged source line discovered at
// instrumentation time.
func RegisterTaggedLine(file string, line int) {
	current().coverage.RegisterLine(file, line)
}

// TrackTaggedExecution records a runtime execution of a tagged source line.
func TrackTaggedExecution(file string, line int) {
	current().coverage.TrackExecution(file, line)
}

// FunctionInfo describes one instrumented function for RegisterFunctions.
type FunctionInfo struct {
	ID               uint32
	HasTaggedInst    bool
	HasTaggedRegions bool
}

// RegisterFunctions installs the instrumentation-time function table. Only
// the first call takes effect.
func RegisterFunctions(funcs []FunctionInfo) {
	infos := make([]funcstats.FunctionInfo, len(funcs))
	for i, f := range funcs {
		infos[i] = funcstats.FunctionInfo{
			ID:               f.ID,
			HasTaggedInst:    f.HasTaggedInst,
			HasTaggedRegions: f.HasTaggedRegions,
		}
	}
	current().funcstats.RegisterFunctions(infos)
}

// RecordFunctionCall counts one call of the identified function.
func RecordFunctionCall(id uint32) {
	current().funcstats.RecordFunction(id)
}

// BlockCounts carries the instruction counts of one basic-block execution.
type BlockCounts struct {
	Total       uint32
	TaggedTotal uint32
	Loads       uint16
	Stores      uint16
	Calls       uint16
	Conversions uint16
	IndexOps    uint16
	Others      uint16
}

// RecordBlockExecution accumulates one basic-block execution into the
// global instruction counters.
func RecordBlockExecution(c BlockCounts) {
	current().funcstats.RecordBlock(funcstats.BlockCounts{
		Total:       c.Total,
		TaggedTotal: c.TaggedTotal,
		Loads:       c.Loads,
		Stores:      c.Stores,
		Calls:       c.Calls,
		Conversions: c.Conversions,
		IndexOps:    c.IndexOps,
		Others:      c.Others,
	})
}

// MetricsCollector returns a prometheus.Collector over the runtime's
// registry and heap tracker, for programs that already run a scrape
// endpoint.
func MetricsCollector() prometheus.Collector {
	s := current()
	return regionstats.NewCollector(s.registry, s.heap)
}

// Reset discards all runtime state and re-arms the exactly-once report
// flush. Test support only; never call it from instrumented code.
func Reset() {
	initMu.Lock()
	defer initMu.Unlock()
	cfg := config.DefaultConfig()
	if s := state.Load(); s != nil {
		cfg = s.cfg
	}
	state.Store(newRuntimeState(cfg))
}
