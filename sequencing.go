package asyncrt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// cancellable is satisfied by every Async[X] regardless of X; it lets the
// trampoline forward Cancel to whichever child is presently active without
// needing to know that child's success type.
type cancellable interface {
	Cancel(reason error)
}

// transformNode is the sequencing engine's trampoline node (spec §4.3): an
// Async[R] that wraps an upstream Async[T] and a transform function
// f: Result[T] -> Async[R]. Every derived combinator (Map, Then, Catch,
// Finally, ...) is Transform with a specialised f.
type transformNode[T, R any] struct {
	promise *Promise[R]

	mu            sync.Mutex
	cancelLatched bool
	cancelReason  error
	active        cancellable // upstream until f runs, then a2, then nil
}

// Transform is the sequencing engine's sole primitive (spec §4.3). It
// registers directly on upstream.OnCompletion, which always dispatches
// through the executor it captured at registration time — so f is NEVER
// invoked inline, even when upstream is already completed. This is the
// trampolining requirement: every sequencing step crosses an executor
// boundary, so a long tail chain (read.Then(write).Then(echo)...) completes
// in bounded stack depth no matter its depth (spec §8 "tail chain" property,
// §9).
func Transform[T, R any](upstream Async[T], f func(Result[T]) Async[R]) Async[R] {
	n := &transformNode[T, R]{
		promise: NewPromise[R](),
		active:  upstream,
	}
	upstream.OnCompletion(func(r Result[T]) {
		n.invoke(f, r)
	})
	return n
}

func (n *transformNode[T, R]) invoke(f func(Result[T]) Async[R], r Result[T]) {
	a2, perr := safeInvoke(f, r)
	if perr != nil {
		n.promise.CompleteResult(Failure[R](perr))
		return
	}

	n.mu.Lock()
	n.active = a2
	latched, reason := n.cancelLatched, n.cancelReason
	n.mu.Unlock()

	if latched {
		// A node created after the cancel latches must observe the latched
		// reason and propagate it immediately when its upstream completes
		// (spec §4.3.5, §8 "Cancel propagation" scenario).
		a2.Cancel(reason)
	}

	a2.OnCompletion(func(r2 Result[R]) {
		n.mu.Lock()
		n.active = nil
		n.mu.Unlock()
		n.promise.CompleteResult(r2)
	})
}

func safeInvoke[T, R any](f func(Result[T]) Async[R], r Result[T]) (a Async[R], err error) {
	defer func() {
		if p := recover(); p != nil {
			err = newPanicError(p)
		}
	}()
	return f(r), nil
}

var _ Async[int] = (*transformNode[int, int])(nil)

func (n *transformNode[T, R]) Poll() (Result[R], bool)          { return n.promise.Poll() }
func (n *transformNode[T, R]) OnCompletion(cb func(Result[R])) { n.promise.OnCompletion(cb) }
func (n *transformNode[T, R]) Sync(ctx context.Context) (R, error) {
	v, err := n.promise.Sync(ctx)
	if _, done := n.promise.Poll(); !done {
		n.Cancel(Interrupted)
	}
	return v, err
}

// Cancel forwards to whichever child is currently executing (spec §4.3.5):
// the upstream while it hasn't completed, or a2 once f has started. The
// first Cancel wins at this node too, and is latched so a child activated
// afterwards still observes it.
func (n *transformNode[T, R]) Cancel(reason error) {
	n.mu.Lock()
	if n.cancelLatched {
		n.mu.Unlock()
		return
	}
	n.cancelLatched = true
	n.cancelReason = reason
	target := n.active
	n.mu.Unlock()
	if target != nil {
		target.Cancel(reason)
	}
}

// matchError is errors.As without needing the caller to know E's zero value
// is addressable; E must be an error-implementing type (spec's Catch/
// CatchAsync are parameterised on the error type they recover from, mirroring
// a typed catch clause).
func matchError[E error](err error, target *E) bool {
	return errors.As(err, target)
}

// Map applies g to a success value, propagating failures unchanged. A
// panicking g becomes a Failure (spec §4.3 table).
func Map[T, R any](a Async[T], g func(T) R) Async[R] {
	return Transform(a, func(r Result[T]) Async[R] {
		return Completed(mapResult(r, g))
	})
}

// Map2 transforms both the success and failure channel, always succeeding
// (spec §4.3 table: "map2(g,h) | Success(g(v)) | Success(h(e))").
func Map2[T, R any](a Async[T], g func(T) R, h func(error) R) Async[R] {
	return Transform(a, func(r Result[T]) Async[R] {
		if r.IsSuccess() {
			return Completed(mapResult(r, g))
		}
		return Ready(h(r.Err()))
	})
}

// Peek runs g for its side effect on success, keeping the original value;
// failures propagate unchanged. A panicking g replaces the result with its
// Failure.
func Peek[T any](a Async[T], g func(T)) Async[T] {
	return Transform(a, func(r Result[T]) Async[T] {
		if r.IsSuccess() {
			if perr := callVoid(func() { g(r.Value()) }); perr != nil {
				return Completed(Failure[T](perr))
			}
		}
		return Completed(r)
	})
}

func callVoid(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = newPanicError(p)
		}
	}()
	fn()
	return nil
}

// Then sequences g onto a success value: g(v) is itself an Async[R] whose
// completion is mirrored into the chain. Failures propagate unchanged.
func Then[T, R any](a Async[T], g func(T) Async[R]) Async[R] {
	return Transform(a, func(r Result[T]) Async[R] {
		if r.IsFailure() {
			return Completed(Failure[R](r.Err()))
		}
		return g(r.Value())
	})
}

// Catch recovers from a failure matching E (via errors.As) by producing a
// replacement value synchronously; any other failure, or a success,
// propagates unchanged.
func Catch[T any, E error](a Async[T], g func(E) T) Async[T] {
	return Transform(a, func(r Result[T]) Async[T] {
		if r.IsSuccess() {
			return Completed(r)
		}
		var target E
		if !matchError(r.Err(), &target) {
			return Completed(r)
		}
		return Completed(mapResult(Success(target), g))
	})
}

// CatchAsync is Catch's async counterpart: g(e) returns a new Async[T] to
// sequence onto, rather than a synchronous replacement value.
func CatchAsync[T any, E error](a Async[T], g func(E) Async[T]) Async[T] {
	return Transform(a, func(r Result[T]) Async[T] {
		if r.IsSuccess() {
			return Completed(r)
		}
		var target E
		if !matchError(r.Err(), &target) {
			return Completed(r)
		}
		return g(target)
	})
}

// Finally runs action for its side effect regardless of outcome, then keeps
// the original result — unless action itself panics, in which case its
// failure replaces the original result.
func Finally[T any](a Async[T], action func()) Async[T] {
	return Transform(a, func(r Result[T]) Async[T] {
		if perr := callVoid(action); perr != nil {
			return Completed(Failure[T](perr))
		}
		return Completed(r)
	})
}

// FinallyAsync is Finally's async counterpart: action returns an Async[Void]
// run to completion before continuing. If it succeeds, the original result is
// kept. If it fails, SPEC_FULL.md's resolution of the corresponding open
// question applies: the finaliser's failure becomes primary, with the prior
// result's failure (if any) attached as a suppressed cause via multierr, so
// errors.Is against the original failure still succeeds.
func FinallyAsync[T any](a Async[T], action func() Async[Void]) Async[T] {
	return Transform(a, func(r Result[T]) Async[T] {
		return Transform(action(), func(fr Result[Void]) Async[T] {
			if fr.IsFailure() {
				return Completed(Failure[T](combineCauses(fr.Err(), r)))
			}
			return Completed(r)
		})
	})
}

// combineCauses folds prior's failure (if any) into finalErr as a suppressed
// cause via multierr.Append, so errors.Is(combined, prior.Err()) still holds.
func combineCauses[T any](finalErr error, prior Result[T]) error {
	if prior.IsFailure() {
		return multierr.Append(finalErr, prior.Err())
	}
	return finalErr
}

// Covary is the idiomatic-Go analogue of the source's unchecked covariance
// cast (spec §4.3, §9): it retypes an Async[T] as an Async[R] via a checked
// type assertion on each success value rather than an unchecked cast, because
// Go generics have no notion of width subtyping to exploit unsafely. A value
// that does not actually satisfy R turns into a Failure instead of silently
// corrupting memory.
func Covary[T, R any](a Async[T]) Async[R] {
	return Map(a, func(v T) R {
		out, ok := any(v).(R)
		if !ok {
			panic(fmt.Sprintf("asyncrt: Covary: %T is not assignable to requested type", v))
		}
		return out
	})
}
