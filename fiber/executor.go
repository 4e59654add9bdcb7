package fiber

import (
	"github.com/tangerg/asyncrt"
	"github.com/tangerg/asyncrt/internal/gls"
)

// workerPool is satisfied by *asyncrt.Pool without this package needing to
// import the concrete type: anything that can hand back one fixed, serial,
// affinity-aware Executor (spec §4.8's getOneExec) rather than a pool that
// round-robins independently on every Submit.
type workerPool interface {
	Worker() asyncrt.Executor
}

// pin resolves e down to a single fixed serial Executor if e is a shared
// pool capable of doing so, leaving any other Executor (a single worker
// already, or a user-supplied adapter assumed serial) untouched. A Fiber
// must bind to one consistent underlying consumer — binding it to a whole
// Pool instead would let the Pool round-robin two of the fiber's own
// trampoline continuations onto different workers, breaking the Executor
// "serial" contract (spec §4.1) for that fiber (spec §8 invariant: code
// inside one fiber sees no intra-fiber concurrency).
func pin(e asyncrt.Executor) asyncrt.Executor {
	if p, ok := e.(workerPool); ok {
		return p.Worker()
	}
	return e
}

// unwrap strips this package's own fiber-identity wrapper off e, if present,
// so spawning with an executor captured from another fiber (e.g. passing
// fiber.CurrentExecutor() explicitly, or reusing a sibling fiber's executor)
// rebinds cleanly to the new fiber's identity instead of nesting wrappers
// (spec §4.7 Construction: "Unwrap if an already-wrapped executor was
// passed").
func unwrap(e asyncrt.Executor) asyncrt.Executor {
	if be, ok := e.(*boundExecutor); ok {
		return be.underlying
	}
	return e
}

// boundExecutor is a Fiber's own bound Executor (spec §4.7 "executor
// wrapper"): every task it dispatches is re-wrapped so that, while running,
// fiber.Current() reads as base and asyncrt.CurrentExecutor() reads as this
// same boundExecutor — not just for the task's synchronous top-level body,
// but for every later trampoline continuation a sequencing node or Promise
// callback captures via CurrentExecutor() at registration time (spec
// invariant 7: "Fiber.current() observed inside a callback equals the fiber
// captured when the callback was registered"). Binding once at Spawn and
// never again, as a plain gls.With around the task's own call, would leave
// fiber.Current() unset for every asynchronous continuation dispatched
// afterwards through the captured executor — this type exists specifically
// so that never happens, by rebinding on every single Submit instead.
type boundExecutor struct {
	base       *Base
	underlying asyncrt.Executor
}

var _ asyncrt.Executor = (*boundExecutor)(nil)

// wrap builds base's bound Executor around underlying. Re-wrapping an
// Executor already bound to the same base is a no-op rather than nesting
// wrappers pointlessly.
func wrap(base *Base, underlying asyncrt.Executor) *boundExecutor {
	if be, ok := underlying.(*boundExecutor); ok && be.base == base {
		return be
	}
	return &boundExecutor{base: base, underlying: underlying}
}

// Submit implements asyncrt.Executor: delegates to underlying, wrapping task
// so that, for its duration, fiber.Current() == e.base and
// asyncrt.CurrentExecutor() == e (the executor wrapper of spec §4.1/§4.7,
// layered on top of asyncrt.RunOn's executor-identity half).
func (e *boundExecutor) Submit(task func()) {
	e.underlying.Submit(func() {
		gls.With(currentFiberSlot, e.base, func() {
			asyncrt.RunOn(e, task)
		})
	})
}
