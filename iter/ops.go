package iter

import (
	"sync"

	"github.com/tangerg/asyncrt"
)

// Map transforms each element lazily; a failure (including End) passes
// through unchanged.
func Map[T, R any](it AsyncIterator[T], f func(T) R) AsyncIterator[R] {
	return Func[R](func() asyncrt.Async[R] {
		return asyncrt.Map(it.Next(), f)
	})
}

// Peek runs f for its side effect on each success value, without altering
// the sequence.
func Peek[T any](it AsyncIterator[T], f func(T)) AsyncIterator[T] {
	return Func[T](func() asyncrt.Async[T] {
		return asyncrt.Peek(it.Next(), f)
	})
}

// Filter skips elements for which pred returns false, without ever exposing
// the skipped values or growing the call stack proportionally to a long run
// of skips — each skip is one more hop through the sequencing engine's
// trampoline, not one more stack frame.
func Filter[T any](it AsyncIterator[T], pred func(T) bool) AsyncIterator[T] {
	var next func() asyncrt.Async[T]
	next = func() asyncrt.Async[T] {
		return asyncrt.Transform(it.Next(), func(r asyncrt.Result[T]) asyncrt.Async[T] {
			if r.IsFailure() || pred(r.Value()) {
				return asyncrt.Completed(r)
			}
			return next()
		})
	}
	return Func[T](next)
}

// FlatMap expands each element into a nested AsyncIterator via f, flattening
// the result into a single sequence. Only one nested sub-iterator is open at
// a time (depth-first, single buffer), matching the spec's description of
// flat_map's laziness.
func FlatMap[T, R any](it AsyncIterator[T], f func(T) AsyncIterator[R]) AsyncIterator[R] {
	var mu sync.Mutex
	var cur AsyncIterator[R]

	var next func() asyncrt.Async[R]
	next = func() asyncrt.Async[R] {
		mu.Lock()
		c := cur
		mu.Unlock()

		if c != nil {
			return asyncrt.Transform(c.Next(), func(r asyncrt.Result[R]) asyncrt.Async[R] {
				if r.IsFailure() && asyncrt.IsEnd(r.Err()) {
					mu.Lock()
					cur = nil
					mu.Unlock()
					return next()
				}
				return asyncrt.Completed(r)
			})
		}

		return asyncrt.Transform(it.Next(), func(r asyncrt.Result[T]) asyncrt.Async[R] {
			if r.IsFailure() {
				return asyncrt.Completed(asyncrt.Failure[R](r.Err()))
			}
			mu.Lock()
			cur = f(r.Value())
			mu.Unlock()
			return next()
		})
	}
	return Func[R](next)
}
