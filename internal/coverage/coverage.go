// Package coverage tracks which tagged source lines actually executed.
//
// Instrumentation registers every tagged line at startup and reports each
// execution at runtime; coverage is the executed fraction of registered
// lines. Plain concurrent sets are enough here: there is no nesting and no
// reentrancy concern.
package coverage

import (
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Tracker holds the registered and executed tagged-line sets.
type Tracker struct {
	registered *xsync.Map[string, struct{}]
	executed   *xsync.Map[string, struct{}]
	runs       atomic.Uint64
}

// New creates an empty coverage tracker.
func New() *Tracker {
	return &Tracker{
		registered: xsync.NewMap[string, struct{}](),
		executed:   xsync.NewMap[string, struct{}](),
	}
}

// location builds the "file:line" key.
func location(file string, line int) string {
	if file == "" {
		file = "<unknown>"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// RegisterLine records a tagged line discovered at instrumentation time.
func (t *Tracker) RegisterLine(file string, line int) {
	t.registered.Store(location(file, line), struct{}{})
}

// TrackExecution records a runtime execution of a tagged line.
func (t *Tracker) TrackExecution(file string, line int) {
	t.executed.Store(location(file, line), struct{}{})
}

// RegisteredCount returns the number of distinct registered lines.
func (t *Tracker) RegisteredCount() int {
	return t.registered.Size()
}

// ExecutedCount returns the number of distinct executed lines.
func (t *Tracker) ExecutedCount() int {
	return t.executed.Size()
}

// Percentage returns executed/registered as a percentage, 0 when nothing is
// registered.
func (t *Tracker) Percentage() float64 {
	registered := t.RegisteredCount()
	if registered == 0 {
		return 0
	}
	return float64(t.ExecutedCount()) / float64(registered) * 100.0
}

// NextRun bumps and returns the run counter, for report blocks produced by
// repeated runs appending to the same file.
func (t *Tracker) NextRun() uint64 {
	return t.runs.Add(1)
}

// Reset clears all state.
func (t *Tracker) Reset() {
	t.registered.Clear()
	t.executed.Clear()
	t.runs.Store(0)
}
