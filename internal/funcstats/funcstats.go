// Package funcstats counts function calls and instruction executions
// reported by instrumented code.
//
// All hot-path state is fixed-size and lock-free: a padded per-function
// call-count table, a bitset of functions seen, and a handful of global
// instruction counters. Function IDs are assigned at instrumentation time
// and used as direct table indices.
package funcstats

import (
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"

	"regionprof/internal/logger"
)

// MaxFunctions bounds the per-function tables. IDs at or above it are
// counted as dropped instead of recorded.
const MaxFunctions = 65536

// FunctionInfo is the instrumentation-time metadata for one function.
type FunctionInfo struct {
	ID               uint32
	HasTaggedInst    bool
	HasTaggedRegions bool
}

// tagged reports whether the function contains any tagged code.
func (f FunctionInfo) tagged() bool {
	return f.HasTaggedInst || f.HasTaggedRegions
}

// paddedCounter keeps adjacent per-function counters off the same cache
// line.
type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

// bitset is a lock-free set of function indices.
type bitset struct {
	words [(MaxFunctions + 63) / 64]atomic.Uint64
}

func (b *bitset) set(index uint32) {
	b.words[index/64].Or(1 << (index % 64))
}

func (b *bitset) isSet(index uint32) bool {
	return b.words[index/64].Load()&(1<<(index%64)) != 0
}

// Tracker accumulates function-call and instruction statistics.
type Tracker struct {
	registerOnce sync.Once
	metadata     []FunctionInfo
	count        atomic.Uint32

	calls   [MaxFunctions]paddedCounter
	seen    bitset
	dropped atomic.Uint64

	totalInstructions  atomic.Uint64
	taggedInstructions atomic.Uint64
	loads              atomic.Uint64
	stores             atomic.Uint64
	callInsts          atomic.Uint64
	conversions        atomic.Uint64
	indexOps           atomic.Uint64
	others             atomic.Uint64

	log log.Logger
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{log: logger.NewLoggerWithContext("funcstats")}
}

// RegisterFunctions installs the instrumentation-time function table. Only
// the first call takes effect; entries beyond MaxFunctions are ignored with
// a warning.
func (t *Tracker) RegisterFunctions(funcs []FunctionInfo) {
	t.registerOnce.Do(func() {
		if len(funcs) > MaxFunctions {
			t.log.Warn().
				Int("count", len(funcs)).
				Int("max", MaxFunctions).
				Msg("function table truncated")
			funcs = funcs[:MaxFunctions]
		}
		t.metadata = append([]FunctionInfo(nil), funcs...)
		t.count.Store(uint32(len(t.metadata)))
	})
}

// RecordFunction counts one call of the identified function.
func (t *Tracker) RecordFunction(id uint32) {
	if id >= MaxFunctions {
		t.dropped.Add(1)
		return
	}
	t.calls[id].value.Add(1)
	t.seen.set(id)
}

// BlockCounts carries the per-execution instruction counts of one basic
// block, split by tagged instruction category.
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

// RecordBlock accumulates one basic-block execution into the global
// instruction counters.
func (t *Tracker) RecordBlock(c BlockCounts) {
	t.totalInstructions.Add(uint64(c.Total))
	if c.TaggedTotal == 0 {
		return
	}
	t.taggedInstructions.Add(uint64(c.TaggedTotal))

	if c.Loads > 0 {
		t.loads.Add(uint64(c.Loads))
	}
	if c.Stores > 0 {
		t.stores.Add(uint64(c.Stores))
	}
	if c.Calls > 0 {
		t.callInsts.Add(uint64(c.Calls))
	}
	if c.Conversions > 0 {
		t.conversions.Add(uint64(c.Conversions))
	}
	if c.IndexOps > 0 {
		t.indexOps.Add(uint64(c.IndexOps))
	}
	if c.Others > 0 {
		t.others.Add(uint64(c.Others))
	}
}

// Stats is a point-in-time view of the tracker.
type Stats struct {
	TotalInstructions  uint64
	TaggedInstructions uint64
	Loads              uint64
	Stores             uint64
	Calls              uint64
	Conversions        uint64
	IndexOps           uint64
	Others             uint64

	UniqueFunctions       uint32
	UniqueTaggedFunctions uint32
	TotalCalls            uint64
	TaggedCalls           uint64
	DroppedFunctions      uint64
}

// Snapshot walks the function table and reads the instruction counters.
func (t *Tracker) Snapshot() Stats {
	s := Stats{
		TotalInstructions:  t.totalInstructions.Load(),
		TaggedInstructions: t.taggedInstructions.Load(),
		Loads:              t.loads.Load(),
		Stores:             t.stores.Load(),
		Calls:              t.callInsts.Load(),
		Conversions:        t.conversions.Load(),
		IndexOps:           t.indexOps.Load(),
		Others:             t.others.Load(),
		DroppedFunctions:   t.dropped.Load(),
	}

	count := t.count.Load()
	for i := uint32(0); i < count; i++ {
		if !t.seen.isSet(i) {
			continue
		}
		s.UniqueFunctions++
		calls := t.calls[i].value.Load()
		s.TotalCalls += calls
		if t.metadata[i].tagged() {
			s.UniqueTaggedFunctions++
			s.TaggedCalls += calls
		}
	}
	return s
}
