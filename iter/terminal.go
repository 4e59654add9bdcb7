package iter

import "github.com/tangerg/asyncrt"

// ForEach drains it, calling f for each success value, until End or a real
// failure. The returned Async succeeds with asyncrt.Void once End is
// reached, or fails with whatever real error the iterator produced.
func ForEach[T any](it AsyncIterator[T], f func(T)) asyncrt.Async[asyncrt.Void] {
	return ForEachAsync(it, func(v T) asyncrt.Async[asyncrt.Void] {
		f(v)
		return asyncrt.Ready(asyncrt.Void{})
	})
}

// ForEachAsync is ForEach's async counterpart: f itself returns an Async to
// wait on before the next element is pulled, so a slow per-element action can
// never race ahead of its predecessor.
func ForEachAsync[T any](it AsyncIterator[T], f func(T) asyncrt.Async[asyncrt.Void]) asyncrt.Async[asyncrt.Void] {
	var step func() asyncrt.Async[asyncrt.Void]
	step = func() asyncrt.Async[asyncrt.Void] {
		return asyncrt.Transform(it.Next(), func(r asyncrt.Result[T]) asyncrt.Async[asyncrt.Void] {
			if r.IsFailure() {
				if asyncrt.IsEnd(r.Err()) {
					return asyncrt.Ready(asyncrt.Void{})
				}
				return asyncrt.Completed(asyncrt.Failure[asyncrt.Void](r.Err()))
			}
			return asyncrt.Then(f(r.Value()), func(asyncrt.Void) asyncrt.Async[asyncrt.Void] {
				return step()
			})
		})
	}
	return step()
}

// Reduce folds it into a single accumulator, synchronously combining each
// element with the running total.
func Reduce[T, A any](it AsyncIterator[T], init A, combine func(A, T) A) asyncrt.Async[A] {
	return ReduceAsync(it, init, func(acc A, v T) asyncrt.Async[A] {
		return asyncrt.Ready(combine(acc, v))
	})
}

// ReduceAsync is Reduce's async counterpart: combine itself returns an Async
// to wait on before the next element is pulled.
func ReduceAsync[T, A any](it AsyncIterator[T], init A, combine func(A, T) asyncrt.Async[A]) asyncrt.Async[A] {
	var step func(A) asyncrt.Async[A]
	step = func(acc A) asyncrt.Async[A] {
		return asyncrt.Transform(it.Next(), func(r asyncrt.Result[T]) asyncrt.Async[A] {
			if r.IsFailure() {
				if asyncrt.IsEnd(r.Err()) {
					return asyncrt.Ready(acc)
				}
				return asyncrt.Completed(asyncrt.Failure[A](r.Err()))
			}
			return asyncrt.Then(combine(acc, r.Value()), func(next A) asyncrt.Async[A] {
				return step(next)
			})
		})
	}
	return step(init)
}

// ToList drains it into a slice, in order.
func ToList[T any](it AsyncIterator[T]) asyncrt.Async[[]T] {
	return Reduce[T, []T](it, nil, func(acc []T, v T) []T {
		return append(acc, v)
	})
}
