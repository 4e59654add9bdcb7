package asyncrt

import (
	"context"
	"sync"
)

// Async is the read-side handle to a value that will eventually hold exactly
// one Result[T] (spec §3). A completed Async never changes state.
type Async[T any] interface {
	// Poll returns the final result if completed, and true; otherwise the
	// zero Result and false. Wait-free.
	Poll() (Result[T], bool)

	// OnCompletion registers cb, captured together with CurrentExecutor().
	// If already completed, cb is scheduled immediately via that executor
	// with the final result; otherwise it runs once completion happens. cb
	// runs at most once, never inline with the call to OnCompletion.
	OnCompletion(cb func(Result[T]))

	// Cancel delivers a cooperative cancellation request carrying reason.
	// The first call wins; later calls (on the same underlying producer) are
	// silently dropped. Cancel is a request, not a guarantee: producers may
	// ignore it.
	Cancel(reason error)

	// Sync blocks the calling goroutine until completion and returns the
	// result. If ctx is cancelled first, Sync delivers Cancel(Interrupted) to
	// the Async and returns ctx.Err(). Deadlock is the caller's
	// responsibility: never call Sync from inside code running on the same
	// serial Executor the Async depends on to complete.
	Sync(ctx context.Context) (T, error)
}

// callbackEntry pairs a captured executor with the function it will run.
type callbackEntry[T any] struct {
	exec Executor
	fn   func(Result[T])
}

// callbackList is an append-only, single-dispatch container for completion
// callbacks (spec §4.2 "Callback list growth"). It special-cases the first
// two entries inline to avoid a slice allocation for the overwhelmingly
// common case of zero or one registered continuation (every `Then` in a
// chain registers exactly one), falling back to an append-only slice only
// once a third callback is registered.
type callbackList[T any] struct {
	first, second *callbackEntry[T]
	rest          []callbackEntry[T]
}

func (c *callbackList[T]) add(e callbackEntry[T]) {
	switch {
	case c.first == nil:
		c.first = &e
	case c.second == nil:
		c.second = &e
	default:
		c.rest = append(c.rest, e)
	}
}

func (c *callbackList[T]) each(fn func(callbackEntry[T])) {
	if c.first != nil {
		fn(*c.first)
	}
	if c.second != nil {
		fn(*c.second)
	}
	for _, e := range c.rest {
		fn(e)
	}
}

// Promise is the producer-side implementation of Async[T] (spec §3). The
// zero value is not usable; construct with NewPromise.
type Promise[T any] struct {
	mu sync.Mutex

	// once completed is true, result holds the final Result and the
	// pending-phase callbacks and cancelListener are dropped.
	completed      bool
	result         Result[T]
	callbacks      callbackList[T]
	cancelListener *callbackEntry[struct{ reason error }]
	cancelReason   error
	cancelLatched  bool
}

var _ Async[int] = (*Promise[int])(nil)

// NewPromise creates a pending Promise[T].
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{}
}

// Poll implements Async.
func (p *Promise[T]) Poll() (Result[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.completed {
		return Result[T]{}, false
	}
	return p.result, true
}

// OnCompletion implements Async. Invariant: result.is_some() <=> pending ==
// none (spec §3 invariant 2) is enforced by holding the same mutex for both
// the completed check and the pending-list append.
func (p *Promise[T]) OnCompletion(cb func(Result[T])) {
	exec := CurrentExecutor()
	p.mu.Lock()
	if p.completed {
		result := p.result
		p.mu.Unlock()
		exec.Submit(func() { cb(result) })
		return
	}
	p.callbacks.add(callbackEntry[T]{exec: exec, fn: cb})
	p.mu.Unlock()
}

// Cancel implements Async (spec §4.2, invariants 3-4). First cancel wins: the
// reason is latched, the current cancel listener (if any) is snapshotted and
// cleared, then dispatched through its own captured executor. A Cancel
// arriving after completion has no effect.
func (p *Promise[T]) Cancel(reason error) {
	p.mu.Lock()
	if p.completed || p.cancelLatched {
		p.mu.Unlock()
		return
	}
	p.cancelLatched = true
	p.cancelReason = reason
	listener := p.cancelListener
	p.cancelListener = nil
	p.mu.Unlock()

	if listener != nil {
		exec := listener.exec
		fn := listener.fn
		exec.Submit(func() { fn(struct{ reason error }{reason}) })
	}
}

// OnCancel registers the single current cancel listener, captured with
// CurrentExecutor(). Registering a new listener displaces (and may drop) a
// previously registered one (spec invariant 4). If a cancellation was
// already latched when OnCancel is called, the listener is dispatched
// immediately with the latched reason (spec §4.2: "if pending but no
// listener at latch time, any listener registered later is scheduled as soon
// as it is registered").
func (p *Promise[T]) OnCancel(listener func(reason error)) {
	exec := CurrentExecutor()
	p.mu.Lock()
	if p.completed {
		p.mu.Unlock()
		return
	}
	if p.cancelLatched {
		reason := p.cancelReason
		p.mu.Unlock()
		exec.Submit(func() { listener(reason) })
		return
	}
	p.cancelListener = &callbackEntry[struct{ reason error }]{
		exec: exec,
		fn:   func(s struct{ reason error }) { listener(s.reason) },
	}
	p.mu.Unlock()
}

// PollCancel returns the latched cancellation reason and true if Cancel has
// been called on this Promise (whether or not it has since completed);
// otherwise (nil, false).
func (p *Promise[T]) PollCancel() (error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelReason, p.cancelLatched
}

// Complete is a convenience wrapper over CompleteResult.
func (p *Promise[T]) Complete(v T, err error) {
	if err != nil {
		p.CompleteResult(Failure[T](err))
		return
	}
	p.CompleteResult(Success(v))
}

// CompleteResult transitions the Promise from pending to completed exactly
// once (spec invariant 1). A second call is silently ignored — it is a
// producer bug (ErrAlreadyCompleted's corresponding kind), but asyncrt
// follows spec §3's note that it simply has no further effect rather than
// panicking, matching the teacher future.Future.complete's sync.Once guard.
func (p *Promise[T]) CompleteResult(r Result[T]) {
	p.mu.Lock()
	if p.completed {
		p.mu.Unlock()
		return
	}
	p.completed = true
	p.result = r
	callbacks := p.callbacks
	p.callbacks = callbackList[T]{}
	p.cancelListener = nil
	p.mu.Unlock()

	callbacks.each(func(e callbackEntry[T]) {
		fn, exec := e.fn, e.exec
		exec.Submit(func() { fn(r) })
	})
}

// Sync implements Async: blocks until completion, delivering
// Cancel(Interrupted) if ctx is done first. Deadlock-prone by construction
// (spec §4.2/§9) — never call it from a goroutine the target Async needs in
// order to complete.
func (p *Promise[T]) Sync(ctx context.Context) (T, error) {
	done := make(chan Result[T], 1)
	p.OnCompletion(func(r Result[T]) { done <- r })
	select {
	case r := <-done:
		return r.Get()
	case <-ctx.Done():
		p.Cancel(Interrupted)
		var zero T
		return zero, ctx.Err()
	}
}

// Completed returns an already-completed Async holding r. Useful as a leaf
// value in sequencing chains (e.g. the base case of a recursive `Then`
// chain).
func Completed[T any](r Result[T]) Async[T] {
	p := NewPromise[T]()
	p.CompleteResult(r)
	return p
}

// Ready is Completed(Success(v)).
func Ready[T any](v T) Async[T] { return Completed(Success(v)) }

// Failed is Completed(Failure(err)).
func Failed[T any](err error) Async[T] { return Completed(Failure[T](err)) }

// VoidAsync is the canonical already-completed Async[Void], the base case of
// a recursive Then chain (spec §8's "tail chain" scenario: `Async.VOID.then(_
// => echo(n-1))`).
func VoidAsync() Async[Void] { return Ready(Void{}) }
