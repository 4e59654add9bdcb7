package asyncrt

import (
	"context"
	"sync"
	"time"
)

// Scheduler is the "delayed execution" collaborator WithTimeout depends on
// (spec §6): something that can run a function once after a delay and cancel
// that pending run. The default implementation wraps time.AfterFunc, mirroring
// how the teacher's flow package leans on the standard library for delay
// timers rather than pulling in a dedicated scheduler dependency (flow/loop.go
// uses time.Timer directly for iteration pacing).
type Scheduler interface {
	// AfterFunc arranges for fn to run after d and returns a function that
	// cancels the pending run; calling it after fn has already started has no
	// effect.
	AfterFunc(d time.Duration, fn func()) (stop func())
}

type timeAfterFuncScheduler struct{}

func (timeAfterFuncScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

var defaultScheduler Scheduler = timeAfterFuncScheduler{}

// SetScheduler replaces the package-wide Scheduler used by WithTimeout.
// Passing nil restores the time.AfterFunc-backed default. Exists so tests can
// swap in a fake clock without a sleep (spec §8's timeout scenarios run
// against whatever Scheduler is current).
func SetScheduler(s Scheduler) {
	if s == nil {
		s = timeAfterFuncScheduler{}
	}
	defaultScheduler = s
}

// WithTimeout races a against a deadline of d (spec §4.4): whichever settles
// first wins. If the deadline fires first, a's Cancel is invoked with a
// *TimeoutError as reason and the returned Async fails with a
// *CancelledError wrapping that same *TimeoutError. If
// a completes first, the pending timer is stopped and never fires. Calling
// Cancel on the returned Async forwards to a and also stops the timer.
func WithTimeout[T any](a Async[T], d time.Duration) Async[T] {
	out := NewPromise[T]()

	var mu sync.Mutex
	var settled bool
	var stop func()

	finish := func(r Result[T]) {
		mu.Lock()
		if settled {
			mu.Unlock()
			return
		}
		settled = true
		s := stop
		mu.Unlock()
		if s != nil {
			s()
		}
		out.CompleteResult(r)
	}

	stopTimer := defaultScheduler.AfterFunc(d, func() {
		reason := Timeout(d)
		a.Cancel(reason)
		finish(Failure[T](Cancelled(reason)))
	})
	mu.Lock()
	stop = stopTimer
	mu.Unlock()

	a.OnCompletion(finish)

	return &timeoutNode[T]{promise: out, upstream: a, stop: func() {
		mu.Lock()
		s := stop
		mu.Unlock()
		if s != nil {
			s()
		}
	}}
}

// timeoutNode lets WithTimeout's Cancel reach both the racing timer and the
// wrapped Async, something a bare Promise can't express since its own Cancel
// only latches a reason for listeners.
type timeoutNode[T any] struct {
	promise  *Promise[T]
	upstream Async[T]
	stop     func()
}

var _ Async[int] = (*timeoutNode[int])(nil)

func (n *timeoutNode[T]) Poll() (Result[T], bool)         { return n.promise.Poll() }
func (n *timeoutNode[T]) OnCompletion(cb func(Result[T])) { n.promise.OnCompletion(cb) }
func (n *timeoutNode[T]) Sync(ctx context.Context) (T, error) {
	v, err := n.promise.Sync(ctx)
	if _, done := n.promise.Poll(); !done {
		n.Cancel(Interrupted)
	}
	return v, err
}

func (n *timeoutNode[T]) Cancel(reason error) {
	n.stop()
	n.upstream.Cancel(reason)
}

// Sleep returns an Async[Void] that succeeds after d, used as the
// never-completes-early half of spec §8's timeout race scenario
// (sleep(100ms).timeout(10ms)) and anywhere else a pure delay is needed.
// Cancelling it before d elapses stops the timer and fails it with the
// cancel reason instead.
func Sleep(d time.Duration) Async[Void] {
	p := NewPromise[Void]()
	stop := defaultScheduler.AfterFunc(d, func() {
		p.CompleteResult(VoidResult())
	})
	p.OnCancel(func(reason error) {
		stop()
		p.CompleteResult(Failure[Void](Cancelled(reason)))
	})
	return p
}
