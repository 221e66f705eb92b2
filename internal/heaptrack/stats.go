package heaptrack

// Stats is a point-in-time snapshot of the tracker's counters. Counters are
// read independently; minor cross-counter skew is accepted for statistics.
type Stats struct {
	TotalUsage    int64
	TotalAllocs   uint64
	TotalReallocs uint64
	TotalDeallocs uint64

	HeapAccesses  uint64
	TaggedObjects uint64
	TaggedBytes   uint64
	TaggedLoads   uint64
	TaggedStores  uint64

	SizeHistogram       [NumSizeBuckets]uint64
	TaggedSizeHistogram [NumSizeBuckets]uint64

	LiveObjects int
}

// Snapshot reads all counters.
func (t *Tracker) Snapshot() Stats {
	s := Stats{
		TotalUsage:    t.totalUsage.Load(),
		TotalAllocs:   t.totalAlloc.Load(),
		TotalReallocs: t.totalRealloc.Load(),
		TotalDeallocs: t.totalDealloc.Load(),
		HeapAccesses:  t.heapAccesses.Load(),
		TaggedObjects: t.taggedObjects.Load(),
		TaggedBytes:   t.taggedBytes.Load(),
		TaggedLoads:   t.taggedLoads.Load(),
		TaggedStores:  t.taggedStores.Load(),
	}
	for i := 0; i < NumSizeBuckets; i++ {
		s.SizeHistogram[i] = t.sizeHist[i].Load()
		s.TaggedSizeHistogram[i] = t.taggedSizeHist[i].Load()
	}
	t.mu.Lock()
	s.LiveObjects = t.live.Len()
	t.mu.Unlock()
	return s
}
