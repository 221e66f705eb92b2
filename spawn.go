package regionprof

import (
	"errors"
	"sync/atomic"

	"regionprof/internal/cycles"
	"regionprof/internal/goid"
)

// ErrNotSupported is returned by SpawnThread when no spawn factory has been
// installed.
var ErrNotSupported = errors.New("regionprof: no spawn factory installed")

// SpawnFunc starts fn on a new thread of execution. Custom schedulers
// install one via SetSpawnFactory so their workers register with the
// runtime.
type SpawnFunc func(fn func()) error

var spawnFactory atomic.Pointer[SpawnFunc]

// SetSpawnFactory installs the factory used by SpawnThread. Passing nil
// uninstalls it.
func SetSpawnFactory(f SpawnFunc) {
	if f == nil {
		spawnFactory.Store(nil)
		return
	}
	spawnFactory.Store(&f)
}

// SpawnThread starts fn through the installed spawn factory, wrapped so the
// new thread registers on start and finalizes its attribution on exit.
// Returns ErrNotSupported when no factory is installed.
func SpawnThread(fn func()) error {
	f := spawnFactory.Load()
	if f == nil {
		return ErrNotSupported
	}
	return (*f)(wrap(fn))
}

// Go runs fn on a new goroutine registered with the runtime. It is the
// native replacement for instrumenting the `go` statement: the goroutine's
// execution context is created before fn runs and finalized when fn
// returns, even on panic.
func Go(fn func()) {
	go wrap(fn)()
}

func wrap(fn func()) func() {
	return func() {
		OnThreadStart()
		defer OnThreadExit()
		fn()
	}
}

// OnThreadStart registers the calling goroutine with the runtime. Go and
// SpawnThread call it automatically; goroutines started outside them may
// call it directly (or rely on lazy registration at the first
// instrumentation call).
func OnThreadStart() {
	current().contextFor(goid.Get())
}

// OnThreadExit attributes the calling goroutine's open state and marks its
// slot terminated, making the slot reusable. Idempotent: a second call for
// the same goroutine is a no-op.
func OnThreadExit() {
	s := current()
	ctx, ok := s.contexts.LoadAndDelete(goid.Get())
	if !ok || !ctx.Tracked() {
		return
	}
	ctx.Finalize(cycles.Now())
}
