package asyncrt

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
)

// ErrBundleSatisfied is the cancellation reason a Bundle hands to whichever
// children are still outstanding once its Trigger has fired (spec §4.5:
// "cancel all still-non-null children with a synthesised cancel reason").
var ErrBundleSatisfied = errors.New("asyncrt: bundle trigger satisfied")

// errAllFailed backs AnyOf's failure case; every child failed.
var errAllFailed = errors.New("asyncrt: all children failed")

// BundleState is the append-only prefix a Trigger inspects: Results always
// holds every child Result seen so far, in completion order (spec §4.5's
// "invariant: observed result lists grow monotonically and never shrink").
type BundleState[T any] struct {
	Total   int
	Results []Result[T]
}

// Trigger decides, after each child completion (and once up front against
// the empty prefix), whether the bundle as a whole is done. A non-nil err
// makes the bundle fail with err instead of producing a combined success
// (spec §4.5: "Some(r) bundle succeeds; throws e bundle fails; None keep
// waiting").
type Trigger[T any] func(state BundleState[T]) (done bool, err error)

// AnyOf completes as soon as one child succeeds; it only fails once every
// child has reported and all of them failed.
func AnyOf[T any]() Trigger[T] {
	return func(s BundleState[T]) (bool, error) {
		for _, r := range s.Results {
			if r.IsSuccess() {
				return true, nil
			}
		}
		if len(s.Results) >= s.Total {
			return true, multierrFrom(errAllFailed, s.Results)
		}
		return false, nil
	}
}

// AllOf succeeds once every child has succeeded and fails as soon as any
// single child fails, with that child's own error — remaining children are
// then cancelled before the bundle's own callbacks fire (spec §8 invariant
// 4).
func AllOf[T any]() Trigger[T] {
	return func(s BundleState[T]) (bool, error) {
		for _, r := range s.Results {
			if r.IsFailure() {
				return true, r.Err()
			}
		}
		return len(s.Results) >= s.Total, nil
	}
}

// SomeOf completes once k children have succeeded. If enough children have
// already failed that k successes can no longer be reached — including at
// construction time, against the empty prefix, per spec §8's "impossible
// threshold" scenario — it fails immediately with an *OverLimitError rather
// than waiting for the remaining children to complete pointlessly.
func SomeOf[T any](k int) Trigger[T] {
	return func(s BundleState[T]) (bool, error) {
		succeeded, failed := 0, 0
		for _, r := range s.Results {
			if r.IsSuccess() {
				succeeded++
			} else {
				failed++
			}
		}
		if succeeded >= k {
			return true, nil
		}
		if s.Total-failed < k {
			return true, &OverLimitError{Threshold: k}
		}
		return false, nil
	}
}

func multierrFrom[T any](base error, results []Result[T]) error {
	errs := collectFailures(results)
	if len(errs) == 0 {
		return base
	}
	return multierr.Append(base, multierr.Combine(errs...))
}

// Bundle runs children concurrently under a single structured-concurrency
// scope (spec §4.5): trigger is evaluated once up front against the empty
// prefix (so e.g. SomeOf(3) over two children fails immediately on
// construction) and again after every child completion, each time against
// the full, append-only Results prefix. Once trigger reports done, the
// accumulated Results are passed through combine to produce the bundle's
// single success value — unless trigger also returned an error, in which
// case the bundle fails with that error instead. Children still outstanding
// when the trigger fires are cancelled with ErrBundleSatisfied; a bundle's
// own Cancel, made before the trigger fires, forwards to every child.
func Bundle[T, R any](children []Async[T], trigger Trigger[T], combine func([]Result[T]) R) Async[R] {
	b := &bundleNode[T, R]{
		promise:  NewPromise[R](),
		children: children,
		total:    len(children),
		combine:  combine,
	}

	if fire, terr := trigger(BundleState[T]{Total: b.total}); fire {
		b.mu.Lock()
		b.done = true
		b.mu.Unlock()
		for _, c := range children {
			c.Cancel(ErrBundleSatisfied)
		}
		b.settle(nil, terr)
		return b
	}

	for _, c := range children {
		child := c
		child.OnCompletion(func(r Result[T]) { b.onChildDone(child, r, trigger) })
	}
	return b
}

type bundleNode[T, R any] struct {
	promise  *Promise[R]
	children []Async[T]
	total    int
	combine  func([]Result[T]) R

	mu      sync.Mutex
	results []Result[T]
	done    bool
}

var _ Async[int] = (*bundleNode[int, int])(nil)

func (b *bundleNode[T, R]) onChildDone(child Async[T], r Result[T], trigger Trigger[T]) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.results = append(b.results, r)
	state := BundleState[T]{Total: b.total, Results: append([]Result[T](nil), b.results...)}
	fire, terr := trigger(state)
	if fire {
		b.done = true
	}
	b.mu.Unlock()

	if !fire {
		return
	}
	b.cancelOutstanding(child)
	b.settle(state.Results, terr)
}

func (b *bundleNode[T, R]) settle(snapshot []Result[T], terr error) {
	if terr != nil {
		if ol, ok := terr.(*OverLimitError); ok {
			ol.Failures = collectFailures(snapshot)
			if len(ol.Failures) > 0 {
				ol.Cause = multierr.Combine(ol.Failures...)
			}
		}
		b.promise.CompleteResult(Failure[R](terr))
		return
	}
	b.promise.CompleteResult(Success(b.combine(snapshot)))
}

func collectFailures[T any](results []Result[T]) []error {
	var errs []error
	for _, r := range results {
		if r.IsFailure() {
			errs = append(errs, r.Err())
		}
	}
	return errs
}

func (b *bundleNode[T, R]) cancelOutstanding(except Async[T]) {
	for _, c := range b.children {
		if c == except {
			continue
		}
		c.Cancel(ErrBundleSatisfied)
	}
}

func (b *bundleNode[T, R]) Poll() (Result[R], bool)          { return b.promise.Poll() }
func (b *bundleNode[T, R]) OnCompletion(cb func(Result[R])) { b.promise.OnCompletion(cb) }
func (b *bundleNode[T, R]) Sync(ctx context.Context) (R, error) {
	v, err := b.promise.Sync(ctx)
	if _, done := b.promise.Poll(); !done {
		b.Cancel(Interrupted)
	}
	return v, err
}

// Cancel forwards reason to every child (spec §4.5's external-cancel rule)
// as long as the trigger has not fired yet. Once it has fired, Cancel does
// nothing: by then every outstanding child was already cancelled with
// ErrBundleSatisfied.
func (b *bundleNode[T, R]) Cancel(reason error) {
	b.mu.Lock()
	already := b.done
	b.mu.Unlock()
	if already {
		return
	}
	for _, c := range b.children {
		c.Cancel(reason)
	}
}

// AllOfValues is a convenience AllOf bundle that unwraps to plain values,
// failing with the first failed child's error (in completion order) if any
// child failed.
func AllOfValues[T any](children []Async[T]) Async[[]T] {
	all := Bundle(children, AllOf[T](), func(rs []Result[T]) []Result[T] { return rs })
	return Then(all, func(rs []Result[T]) Async[[]T] {
		out := make([]T, len(rs))
		for i, r := range rs {
			if r.IsFailure() {
				return Completed(Failure[[]T](r.Err()))
			}
			out[i] = r.Value()
		}
		return Ready(out)
	})
}
