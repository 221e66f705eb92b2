// Package registry maintains the fixed table of per-thread statistics slots.
//
// Slots are claimed lock-free: a new thread first tries to win a Terminated
// slot via compare-and-swap, then falls back to bumping the high-water mark.
// Once the fixed capacity is exhausted further threads run untracked; the
// host program is never made to fail because of the profiler.
package registry

import (
	"sync/atomic"

	"github.com/phuslu/log"

	"regionprof/internal/cycles"
	"regionprof/internal/logger"
)

// Capacity is the fixed number of thread slots.
const Capacity = 4096

// Lifecycle is the authoritative per-slot state guarding reuse.
type Lifecycle uint32

const (
	Uninitialized Lifecycle = iota
	Active
	Terminated
)

// State identifies one of the four mutually exclusive execution states a
// thread occupies. Slot tick accumulators are indexed by State.
type State uint8

const (
	Normal State = iota
	Tagged
	ExternalFromNormal
	ExternalFromTagged

	NumStates
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Tagged:
		return "tagged"
	case ExternalFromNormal:
		return "external_from_normal"
	case ExternalFromTagged:
		return "external_from_tagged"
	default:
		return "unknown"
	}
}

// Slot holds the durable counters for one registered thread. All fields are
// atomics: the owning thread writes, the aggregator reads concurrently.
// The trailing pad keeps neighboring slots on separate cache lines.
type Slot struct {
	threadID      atomic.Uint64
	lifecycle     atomic.Uint32
	startTicks    atomic.Uint64
	lastTicks     atomic.Uint64
	stateTicks    [NumStates]atomic.Uint64
	taggedEntries atomic.Uint64
	externalCalls atomic.Uint64

	_ [48]byte
}

// reset zeroes every field. Only called by the thread that just won the slot,
// before it is published as Active, so plain stores suffice.
func (s *Slot) reset() {
	s.threadID.Store(0)
	s.startTicks.Store(0)
	s.lastTicks.Store(0)
	for i := range s.stateTicks {
		s.stateTicks[i].Store(0)
	}
	s.taggedEntries.Store(0)
	s.externalCalls.Store(0)
}

// activate publishes the slot as owned by threadID starting at now.
func (s *Slot) activate(threadID uint64, now cycles.Ticks) {
	s.threadID.Store(threadID)
	s.startTicks.Store(uint64(now))
	s.lastTicks.Store(uint64(now))
	s.lifecycle.Store(uint32(Active))
}

// Lifecycle returns the slot's current lifecycle state.
func (s *Slot) Lifecycle() Lifecycle {
	return Lifecycle(s.lifecycle.Load())
}

// ThreadID returns the owning thread's id. Informational only.
func (s *Slot) ThreadID() uint64 {
	return s.threadID.Load()
}

// AddTicks charges elapsed ticks to one execution state's accumulator.
func (s *Slot) AddTicks(st State, elapsed cycles.Ticks) {
	s.stateTicks[st].Add(uint64(elapsed))
}

// StateTicks returns the accumulated ticks for one execution state.
func (s *Slot) StateTicks(st State) uint64 {
	return s.stateTicks[st].Load()
}

// IncTaggedEntries counts one entry into a tagged region.
func (s *Slot) IncTaggedEntries() {
	s.taggedEntries.Add(1)
}

// IncExternalCalls counts one call into external code.
func (s *Slot) IncExternalCalls() {
	s.externalCalls.Add(1)
}

// TaggedEntries returns the tagged-region entry count.
func (s *Slot) TaggedEntries() uint64 {
	return s.taggedEntries.Load()
}

// ExternalCalls returns the external-call entry count.
func (s *Slot) ExternalCalls() uint64 {
	return s.externalCalls.Load()
}

// StartTicks returns the tick reading taken when the slot was activated.
func (s *Slot) StartTicks() cycles.Ticks {
	return cycles.Ticks(s.startTicks.Load())
}

// LastTicks returns the most recent tick reading stamped on the slot.
func (s *Slot) LastTicks() cycles.Ticks {
	return cycles.Ticks(s.lastTicks.Load())
}

// Finalize stamps the thread's final tick reading and marks the slot
// Terminated, making it eligible for reuse by a future thread.
func (s *Slot) Finalize(now cycles.Ticks) {
	s.lastTicks.Store(uint64(now))
	s.lifecycle.Store(uint32(Terminated))
}

// Registry is the fixed-capacity slot table.
type Registry struct {
	slots     [Capacity]Slot
	highWater atomic.Int64
	dropped   atomic.Uint64
	log       log.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		log: logger.NewLoggerWithContext("registry"),
	}
}

// AllocateSlot claims a slot for a new thread and activates it.
//
// Terminated slots are reclaimed first: the claimant must win the
// Terminated -> Uninitialized compare-and-swap, which fences off the
// terminated owner's last writes before the reset. With no reclaimable slot,
// a fresh one is taken by bumping the high-water mark. Returns ok=false when
// capacity is exhausted; the caller degrades to untracked.
func (r *Registry) AllocateSlot(threadID uint64, now cycles.Ticks) (*Slot, bool) {
	hw := r.highWater.Load()
	if hw > Capacity {
		hw = Capacity
	}
	for i := int64(0); i < hw; i++ {
		s := &r.slots[i]
		if Lifecycle(s.lifecycle.Load()) != Terminated {
			continue
		}
		if s.lifecycle.CompareAndSwap(uint32(Terminated), uint32(Uninitialized)) {
			s.reset()
			s.activate(threadID, now)
			return s, true
		}
	}

	idx := r.highWater.Add(1) - 1
	if idx >= Capacity {
		r.highWater.Add(-1)
		n := r.dropped.Add(1)
		r.log.Warn().
			Uint64("thread_id", threadID).
			Uint64("dropped_total", n).
			Int("capacity", Capacity).
			Msg("thread slot capacity exhausted, thread runs untracked")
		return nil, false
	}
	s := &r.slots[idx]
	s.reset()
	s.activate(threadID, now)
	return s, true
}

// HighWater returns the number of slots ever claimed.
func (r *Registry) HighWater() int {
	hw := r.highWater.Load()
	if hw > Capacity {
		return Capacity
	}
	return int(hw)
}

// Dropped returns the number of threads refused for lack of capacity.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}
