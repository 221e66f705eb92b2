// Package engine implements the per-thread execution-context state machine.
//
// Each tracked thread owns one Context: a bounded stack of frames recording
// which of the four execution states the thread occupies and since when.
// Attribution happens at transition time: before any mutation the elapsed
// ticks since the frame's entry are charged to the state that was actually
// active, which keeps the four per-state accumulators disjoint and exhaustive
// over the thread's lifetime.
//
// A Context is exclusively owned by its thread and never locked; only the
// slot's atomic accumulators are visible cross-thread.
package engine

import (
	"github.com/phuslu/log"

	"regionprof/internal/cycles"
	"regionprof/internal/logger"
	"regionprof/internal/registry"
)

// MaxDepth bounds the frame stack. Exceeding it degrades to not tracking the
// extra nesting levels instead of failing the host program.
const MaxDepth = 64

// Frame is one entry in the nesting stack: the state active since Entry.
type Frame struct {
	State registry.State
	Entry cycles.Ticks
}

// Context is the per-thread nested execution state. Frame 0 is the thread's
// baseline Normal state and is never popped.
type Context struct {
	slot   *registry.Slot
	frames [MaxDepth]Frame
	depth  int
	// overflowDepth is the current number of untracked external nesting
	// levels above the full stack; overflows is the total dropped enters.
	overflowDepth int
	overflows     uint64
	log           log.Logger
}

// New creates a Context for a thread whose slot was activated at now.
// A nil slot yields an untracked context: every operation is a no-op, which
// is how capacity-exhausted threads degrade.
func New(slot *registry.Slot, now cycles.Ticks) *Context {
	c := &Context{
		slot: slot,
		log:  logger.NewLoggerWithContext("engine"),
	}
	c.frames[0] = Frame{State: registry.Normal, Entry: now}
	return c
}

// Tracked reports whether this context is backed by a registry slot.
func (c *Context) Tracked() bool {
	return c != nil && c.slot != nil
}

// charge attributes the elapsed ticks since the frame's entry to the frame's
// current state and restarts the frame's clock at now.
func (c *Context) charge(f *Frame, now cycles.Ticks) {
	if now > f.Entry {
		c.slot.AddTicks(f.State, now-f.Entry)
	}
	f.Entry = now
}

// EnterTagged transitions the top frame into its tagged counterpart:
// Normal -> Tagged, ExternalFromNormal -> ExternalFromTagged. Entering while
// already tagged is a no-op, so nested tagged regions are not double counted.
func (c *Context) EnterTagged(now cycles.Ticks) {
	if !c.Tracked() {
		return
	}
	top := &c.frames[c.depth]

	var next registry.State
	switch top.State {
	case registry.Normal:
		next = registry.Tagged
	case registry.ExternalFromNormal:
		next = registry.ExternalFromTagged
	default:
		return
	}

	c.charge(top, now)
	top.State = next
	c.slot.IncTaggedEntries()
}

// ExitTagged is the inverse of EnterTagged: Tagged -> Normal,
// ExternalFromTagged -> ExternalFromNormal. Exiting while not tagged is a
// no-op (unmatched exits are the instrumentation layer's problem, not a
// reason to corrupt accounting).
func (c *Context) ExitTagged(now cycles.Ticks) {
	if !c.Tracked() {
		return
	}
	top := &c.frames[c.depth]

	var next registry.State
	switch top.State {
	case registry.Tagged:
		next = registry.Normal
	case registry.ExternalFromTagged:
		next = registry.ExternalFromNormal
	default:
		return
	}

	c.charge(top, now)
	top.State = next
}

// EnterExternal suspends the current frame and pushes a frame for a call into
// uninstrumented code. The new frame remembers whether the call was issued
// from tagged or normal context so the time can be attributed accordingly.
// On stack overflow the call is not tracked: its time stays attributed to the
// suspended frame's state.
func (c *Context) EnterExternal(now cycles.Ticks) {
	if !c.Tracked() {
		return
	}
	top := &c.frames[c.depth]

	next := registry.ExternalFromNormal
	if top.State == registry.Tagged || top.State == registry.ExternalFromTagged {
		next = registry.ExternalFromTagged
	}

	if c.overflowDepth > 0 || c.depth+1 >= MaxDepth {
		c.overflowDepth++
		c.overflows++
		if c.overflows == 1 {
			c.log.Warn().
				Uint64("thread_id", c.slot.ThreadID()).
				Int("max_depth", MaxDepth).
				Msg("context stack overflow, deeper external calls untracked")
		}
		return
	}

	c.charge(top, now)
	c.depth++
	c.frames[c.depth] = Frame{State: next, Entry: now}
	c.slot.IncExternalCalls()
}

// ExitExternal pops the top external frame, attributing its elapsed time, and
// resumes the parent frame by restarting its clock. The baseline frame is
// never popped. Exits matching an overflowed (untracked) enter fall into the
// no-op path only when the stack is empty; otherwise the instrumentation
// layer guarantees well-nested pairs.
func (c *Context) ExitExternal(now cycles.Ticks) {
	if !c.Tracked() {
		return
	}
	if c.overflowDepth > 0 {
		// This exit matches an enter that was dropped at overflow depth.
		c.overflowDepth--
		return
	}
	if c.depth == 0 {
		return
	}

	top := &c.frames[c.depth]
	if now > top.Entry {
		c.slot.AddTicks(top.State, now-top.Entry)
	}
	c.depth--
	c.frames[c.depth].Entry = now
}

// Finalize attributes any remaining time in the open top frame to its state
// and marks the slot Terminated. A region that never called its matching exit
// leaves its frame open until this point.
func (c *Context) Finalize(now cycles.Ticks) {
	if !c.Tracked() {
		return
	}
	top := &c.frames[c.depth]
	if now > top.Entry {
		c.slot.AddTicks(top.State, now-top.Entry)
		top.Entry = now
	}
	c.slot.Finalize(now)
}

// Depth returns the current nesting depth (0 is the baseline frame).
func (c *Context) Depth() int {
	return c.depth
}

// TopState returns the state of the top frame.
func (c *Context) TopState() registry.State {
	return c.frames[c.depth].State
}

// Overflows returns how many external-call entries were dropped because the
// frame stack was full.
func (c *Context) Overflows() uint64 {
	return c.overflows
}
