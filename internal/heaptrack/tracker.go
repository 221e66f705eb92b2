// Package heaptrack records live heap allocations and classifies which of
// them are touched from tagged regions.
//
// Go exposes no global-allocator hook, so the tracker is an explicit
// tracked-allocation API: call sites route allocations through Alloc/Free/
// Realloc (or the low-level Record/Remove/Reallocated for memory they own)
// and get the same accounting an allocator substitute would provide.
//
// The live-object index is an ordered B-tree guarded by a mutex. The real
// hazard is reentrancy, not contention: index maintenance may itself
// allocate, and a tracked allocation issued from inside the tracker would
// recurse into it. A per-goroutine suppression depth fences this off: any
// tracker operation observed while the current goroutine is suppressed
// bypasses tracking entirely (lookups report "not found" rather than touch
// the lock).
package heaptrack

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/btree"
	"github.com/phuslu/log"
	"github.com/puzpuzpuz/xsync/v4"

	"regionprof/internal/goid"
	"regionprof/internal/logger"
)

// NumSizeBuckets is the number of size-classification buckets: bucket i
// holds objects of size <= 2^i KB for i in [0, 12], the last bucket catches
// everything above 4MB.
const NumSizeBuckets = 14

// object is one live heap allocation, keyed by base address.
type object struct {
	base uintptr
	size uintptr
}

func lessObject(a, b object) bool {
	return a.base < b.base
}

// Tracker is the process-wide heap statistics collector.
type Tracker struct {
	// Cumulative allocated bytes (adjusted by realloc deltas, never
	// reduced on free: this mirrors "total heap usage", not residency).
	totalUsage atomic.Int64

	totalAlloc   atomic.Uint64
	totalRealloc atomic.Uint64
	totalDealloc atomic.Uint64

	heapAccesses  atomic.Uint64
	taggedObjects atomic.Uint64
	taggedBytes   atomic.Uint64
	taggedLoads   atomic.Uint64
	taggedStores  atomic.Uint64

	sizeHist       [NumSizeBuckets]atomic.Uint64
	taggedSizeHist [NumSizeBuckets]atomic.Uint64

	mu     sync.Mutex
	live   *btree.BTreeG[object]
	tagged map[uintptr]struct{}

	// suppress maps goroutine id -> suppression depth.
	suppress *xsync.Map[int64, int]

	log log.Logger
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		live:     btree.NewG[object](16, lessObject),
		tagged:   make(map[uintptr]struct{}),
		suppress: xsync.NewMap[int64, int](),
		log:      logger.NewLoggerWithContext("heaptrack"),
	}
}

// enterGuard marks the calling goroutine suppressed for the duration of one
// tracker operation. It returns false if the goroutine is already suppressed,
// in which case the operation must bypass tracking.
func (t *Tracker) enterGuard() (int64, bool) {
	id := goid.Get()
	if depth, ok := t.suppress.Load(id); ok && depth > 0 {
		return id, false
	}
	t.suppress.Store(id, 1)
	return id, true
}

func (t *Tracker) exitGuard(id int64) {
	t.suppress.Delete(id)
}

// WithoutTracking runs fn with tracking suppressed for the calling
// goroutine. Used for internal bookkeeping such as report writing, whose own
// allocations must never show up in the statistics. Nests safely.
func (t *Tracker) WithoutTracking(fn func()) {
	id := goid.Get()
	depth, _ := t.suppress.Load(id)
	t.suppress.Store(id, depth+1)
	defer func() {
		if depth == 0 {
			t.suppress.Delete(id)
		} else {
			t.suppress.Store(id, depth)
		}
	}()
	fn()
}

// Alloc allocates size bytes through the regular allocator and records the
// allocation. The returned slice must be released with Free to keep the
// live-object index accurate.
func (t *Tracker) Alloc(size int) []byte {
	buf := make([]byte, size)
	if size > 0 {
		t.Record(uintptr(unsafe.Pointer(&buf[0])), uintptr(size))
	}
	return buf
}

// Free records the deallocation of a slice obtained from Alloc.
func (t *Tracker) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	t.Remove(uintptr(unsafe.Pointer(&buf[0])))
}

// Realloc resizes a slice obtained from Alloc, preserving its contents, and
// records the reallocation (as remove-old + insert-new when the base moves).
func (t *Tracker) Realloc(buf []byte, newSize int) []byte {
	if newSize <= cap(buf) && newSize > 0 && len(buf) > 0 {
		// In-place resize: same base, new length.
		newBuf := buf[:newSize]
		t.Reallocated(
			uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)),
			uintptr(unsafe.Pointer(&newBuf[0])), uintptr(newSize))
		return newBuf
	}

	newBuf := make([]byte, newSize)
	copy(newBuf, buf)
	var oldBase, newBase uintptr
	if len(buf) > 0 {
		oldBase = uintptr(unsafe.Pointer(&buf[0]))
	}
	if newSize > 0 {
		newBase = uintptr(unsafe.Pointer(&newBuf[0]))
	}
	t.Reallocated(oldBase, uintptr(len(buf)), newBase, uintptr(newSize))
	return newBuf
}

// Record registers a live heap object at base spanning size bytes.
func (t *Tracker) Record(base, size uintptr) {
	if base == 0 {
		return
	}
	id, ok := t.enterGuard()
	if !ok {
		return
	}
	defer t.exitGuard(id)

	t.totalUsage.Add(int64(size))
	t.totalAlloc.Add(1)
	bumpHistogram(&t.sizeHist, size)

	t.mu.Lock()
	t.live.ReplaceOrInsert(object{base: base, size: size})
	t.mu.Unlock()
}

// Remove purges a heap object from the live index and the tagged set. The
// purge matters for address reuse: a later allocation at the same base must
// not inherit the old object's tagged status.
func (t *Tracker) Remove(base uintptr) {
	if base == 0 {
		return
	}
	id, ok := t.enterGuard()
	if !ok {
		return
	}
	defer t.exitGuard(id)

	t.totalDealloc.Add(1)

	t.mu.Lock()
	t.live.Delete(object{base: base})
	delete(t.tagged, base)
	t.mu.Unlock()
}

// Reallocated records a reallocation. A moved base counts as remove-old plus
// insert-new; an unmoved base only updates the recorded size. Total usage is
// adjusted by the signed size delta either way.
func (t *Tracker) Reallocated(oldBase, oldSize, newBase, newSize uintptr) {
	if newBase == 0 {
		return
	}
	id, ok := t.enterGuard()
	if !ok {
		return
	}
	defer t.exitGuard(id)

	t.mu.Lock()
	if newBase != oldBase {
		if oldBase != 0 {
			t.live.Delete(object{base: oldBase})
			delete(t.tagged, oldBase)
		}
		t.totalRealloc.Add(1)
		bumpHistogram(&t.sizeHist, newSize)
	}
	t.live.ReplaceOrInsert(object{base: newBase, size: newSize})
	t.mu.Unlock()

	t.totalUsage.Add(int64(newSize) - int64(oldSize))
}

// findObject locates the live object containing ptr: predecessor search for
// the largest base <= ptr, then a bounds check. Caller holds no guard; the
// caller's guard covers the whole operation.
func (t *Tracker) findObject(ptr uintptr) (object, bool) {
	var found object
	var ok bool
	t.mu.Lock()
	t.live.DescendLessOrEqual(object{base: ptr}, func(o object) bool {
		found, ok = o, true
		return false
	})
	t.mu.Unlock()
	if ok && ptr < found.base+found.size {
		return found, true
	}
	return object{}, false
}

// AccessRegion reports whether ptr falls within a live heap object, bumping
// the heap-access counter when it does. A call issued while the goroutine is
// suppressed (the tracker's own bookkeeping) reports false without touching
// the lock.
func (t *Tracker) AccessRegion(ptr uintptr) bool {
	id, ok := t.enterGuard()
	if !ok {
		return false
	}
	defer t.exitGuard(id)

	if _, found := t.findObject(ptr); found {
		t.heapAccesses.Add(1)
		return true
	}
	return false
}

// AccessTagged records a tagged-region access to ptr. If ptr resolves to a
// live object, the object is promoted into the tagged set exactly once
// (bumping tagged object/byte counters and the tagged histogram on first
// promotion), and the load or store counter is bumped on every resolved
// access.
func (t *Tracker) AccessTagged(ptr uintptr, isLoad bool) {
	id, ok := t.enterGuard()
	if !ok {
		return
	}
	defer t.exitGuard(id)

	obj, found := t.findObject(ptr)
	if !found {
		return
	}

	t.mu.Lock()
	_, seen := t.tagged[obj.base]
	if !seen {
		t.tagged[obj.base] = struct{}{}
	}
	t.mu.Unlock()

	if !seen {
		t.taggedObjects.Add(1)
		t.taggedBytes.Add(uint64(obj.size))
		bumpHistogram(&t.taggedSizeHist, obj.size)
	}
	if isLoad {
		t.taggedLoads.Add(1)
	} else {
		t.taggedStores.Add(1)
	}
}

// bumpHistogram classifies size into its power-of-two bucket.
func bumpHistogram(hist *[NumSizeBuckets]atomic.Uint64, size uintptr) {
	for i := 0; i < NumSizeBuckets-1; i++ {
		if size <= (uintptr(1)<<i)*1024 {
			hist[i].Add(1)
			return
		}
	}
	hist[NumSizeBuckets-1].Add(1)
}
