package asyncrt

import "github.com/tangerg/asyncrt/internal/gls"

// Executor accepts work and runs it later. Implementations must satisfy
// three contracts (spec §4.1):
//
//   - Serial: no two units submitted through the same Executor ever run
//     concurrently with each other.
//   - Asynchronous: Submit returns before the work runs; never inline.
//   - Thread-safe: Submit may be called from any goroutine at any time.
//
// Submitted work is expected to be non-blocking; blocking work should be
// dispatched through Execute (execute.go) to a dedicated blocking pool
// instead of occupying a serial Executor's worker.
type Executor interface {
	Submit(task func())
}

// currentExecutorSlot holds, per goroutine, the Executor captured by the
// innermost RunOn currently on that goroutine's stack. A pool worker
// (pool.go) binds itself here around every task it runs, and a Fiber's bound
// executor (the sibling fiber package's boundExecutor, in fiber/executor.go)
// establishes this around every task it dispatches, not just a fiber's
// top-level entry; a goroutine running under neither sees no entry here and
// falls back to the default pool (CurrentExecutor's zero-value branch).
var currentExecutorSlot = gls.NewSlot[Executor]()

// CurrentExecutor returns the Executor captured for the calling goroutine, or
// the package DefaultPool if none is set. Used at every "capture the current
// executor" point in the sequencing engine (spec §4.3) and by
// Promise.OnCompletion/Promise.OnCancel's listener registration (spec §4.2).
func CurrentExecutor() Executor {
	if e, ok := currentExecutorSlot.Get(); ok {
		return e
	}
	return DefaultPool()
}

// RunOn binds e as the current executor for the duration of fn on the
// calling goroutine, restoring whatever was bound before (or clearing it)
// once fn returns, even if fn panics. This is the executor-identity half of
// the "executor wrapper" of spec §4.1/§4.7; the sibling fiber package's
// boundExecutor layers the fiber-identity half on top by also binding the
// current-fiber slot around every Submit before deferring here, so both
// slots are re-established for every dispatched unit of work — not only a
// fiber's synchronous entry point, but every later trampoline continuation
// dispatched through the same bound executor.
func RunOn(e Executor, fn func()) {
	gls.With(currentExecutorSlot, e, fn)
}

// ExecutorFunc adapts a plain func(func()) into an Executor, mirroring the
// teacher's poolWrapper/poolAdapter pattern in future/pool.go and
// pkg/sync/pool.go.
type ExecutorFunc func(task func())

// Submit implements Executor.
func (f ExecutorFunc) Submit(task func()) { f(task) }

// ExecutorOfGoroutines returns an Executor that launches an unpooled
// goroutine per submitted task, with panic recovery. Mirrors
// future.PoolOfGoroutines / pkg/sync.PoolOfNoPool. Note this Executor does
// NOT satisfy the "serial" contract on its own (callers relying on ordering
// must serialize some other way) — it exists as the simplest possible
// escape-hatch backend, exactly as it does in the teacher.
func ExecutorOfGoroutines() Executor {
	return ExecutorFunc(func(task func()) {
		goRecovered(task)
	})
}
