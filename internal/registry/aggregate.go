package registry

import "regionprof/internal/cycles"

// Totals is a cross-thread reduction of the registry at one point in time.
//
// Counters within one snapshot may be read at slightly different moments;
// that approximation is acceptable for statistics. Slots whose attributed
// ticks exceed their computed total (the thread terminated mid-read) are
// excluded rather than corrupting the sums.
type Totals struct {
	TotalTicks    uint64
	TaggedTicks   uint64
	ExternalTicks uint64
	// InternalTicks is TotalTicks minus ExternalTicks.
	InternalTicks uint64
	// TaggedPercent is the tagged share of internal ticks, 0-100.
	TaggedPercent float64

	StateTicks [NumStates]uint64

	TaggedEntries uint64
	ExternalCalls uint64

	ActiveThreads     uint64
	TerminatedThreads uint64
	SkippedSlots      uint64
	DroppedThreads    uint64
}

// Aggregate walks every claimed slot and reduces it into Totals.
//
// Active threads are still running, so their total is computed against the
// caller-supplied now reading; Terminated threads use their stored final
// reading. Uninitialized slots (claimed but not yet published, or mid-reuse)
// are skipped.
func (r *Registry) Aggregate(now cycles.Ticks) Totals {
	t := Totals{DroppedThreads: r.dropped.Load()}

	hw := r.HighWater()
	for i := 0; i < hw; i++ {
		s := &r.slots[i]

		state := Lifecycle(s.lifecycle.Load())
		if state == Uninitialized {
			continue
		}

		var perState [NumStates]uint64
		for st := State(0); st < NumStates; st++ {
			perState[st] = s.stateTicks[st].Load()
		}
		tagged := perState[Tagged]
		external := perState[ExternalFromNormal] + perState[ExternalFromTagged]

		var total uint64
		if state == Active {
			start := s.startTicks.Load()
			if uint64(now) > start {
				total = uint64(now) - start
			}
		} else {
			start := s.startTicks.Load()
			last := s.lastTicks.Load()
			if last > start {
				total = last - start
			}
		}

		// Defensive skip: a slot can be caught between its owner's last
		// accumulator write and the lifecycle transition.
		if tagged > total || external > total {
			t.SkippedSlots++
			r.log.Warn().
				Int("slot", i).
				Uint64("tagged_ticks", tagged).
				Uint64("external_ticks", external).
				Uint64("total_ticks", total).
				Msg("inconsistent slot snapshot, excluding from aggregate")
			continue
		}

		if state == Active {
			t.ActiveThreads++
		} else {
			t.TerminatedThreads++
		}

		t.TotalTicks += total
		t.TaggedTicks += tagged
		t.ExternalTicks += external
		for st := State(0); st < NumStates; st++ {
			t.StateTicks[st] += perState[st]
		}
		t.TaggedEntries += s.taggedEntries.Load()
		t.ExternalCalls += s.externalCalls.Load()
	}

	if t.TotalTicks > t.ExternalTicks {
		t.InternalTicks = t.TotalTicks - t.ExternalTicks
	} else {
		t.InternalTicks = t.TotalTicks
	}
	if t.InternalTicks > 0 {
		t.TaggedPercent = float64(t.TaggedTicks) / float64(t.InternalTicks) * 100.0
	}
	return t
}
