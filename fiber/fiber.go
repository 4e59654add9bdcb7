// Package fiber provides logical execution contexts bound to a serializing
// Executor (spec §4.7): a Fiber carries an identity, a name, fiber-local
// storage inherited at spawn time, and an optional recorded stack trace for
// panics. It sits on top of the root asyncrt package rather than inside it so
// that asyncrt itself never needs to know fibers exist — exactly the
// one-directional dependency the teacher's flow package has on future.
package fiber

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tangerg/asyncrt"
	"github.com/tangerg/asyncrt/internal/gls"
)

// Base is the type-erased half of a Fiber: identity, the bound Executor,
// fiber-local storage and panic bookkeeping, independent of the fiber's task
// result type. Fiber.current() (spec §4.7) can only be ambient if it doesn't
// need to know T, which is why it hands back a *Base rather than a Fiber[T].
type Base struct {
	id     uuid.UUID
	name   string
	exec   asyncrt.Executor
	parent *Base
	trace  bool

	localsMu sync.RWMutex
	locals   map[localKey]any

	panicMu    sync.Mutex
	panicInfo  any
	panicStack []byte

	traceMu     sync.Mutex
	traceFrames [][]byte
}

var currentFiberSlot = gls.NewSlot[*Base]()

// Current returns the Base of the Fiber bound to the calling goroutine, if
// any.
func Current() (*Base, bool) {
	return currentFiberSlot.Get()
}

// CurrentExecutor returns the Executor of the calling goroutine's Fiber, or
// asyncrt.CurrentExecutor()'s fallback if there is none (spec §4.7:
// "current_executor() = this fiber's executor wrapper, the default executor
// if no fiber is current").
func CurrentExecutor() asyncrt.Executor {
	if b, ok := Current(); ok {
		return b.exec
	}
	return asyncrt.CurrentExecutor()
}

// ID returns the fiber's identity.
func (b *Base) ID() uuid.UUID { return b.id }

// Name returns the fiber's name (not required to be unique).
func (b *Base) Name() string { return b.name }

// Executor returns the Executor this fiber runs on.
func (b *Base) Executor() asyncrt.Executor { return b.exec }

// Parent returns the Base of the fiber that spawned this one, if any.
func (b *Base) Parent() (*Base, bool) { return b.parent, b.parent != nil }

// LastPanic returns the most recently recovered panic value for this fiber,
// its recorded stack trace (nil unless tracing was enabled), and whether it
// has ever panicked.
func (b *Base) LastPanic() (info any, stack []byte, ok bool) {
	b.panicMu.Lock()
	defer b.panicMu.Unlock()
	return b.panicInfo, b.panicStack, b.panicInfo != nil
}

func (b *Base) recordPanic(r any) {
	var stack []byte
	if b.trace {
		stack = recordStack()
	}
	b.panicMu.Lock()
	b.panicInfo = r
	b.panicStack = stack
	b.panicMu.Unlock()
	asyncrt.Log().Warn("asyncrt/fiber: panic recovered", "fiber", b.name, "error", r)
}

func inheritedLocals(parent *Base) map[localKey]any {
	if parent == nil {
		return make(map[localKey]any)
	}
	parent.localsMu.RLock()
	defer parent.localsMu.RUnlock()
	out := make(map[localKey]any, len(parent.locals))
	for k, v := range parent.locals {
		out[k] = v
	}
	return out
}

// Fiber[T] is a logical task hosted on its own Base: task runs on exec and
// produces an Async[T], which Join exposes — directly, or behind a
// freshly allocated forwarding Promise when tracing is on (spec §4.7: "the
// joiner is either the task's own Async[T], directly reused, or ... a
// forwarding Promise[T]"; see Join below).
type Fiber[T any] struct {
	base *Base
	task asyncrt.Async[T]
}

// Base returns the type-erased identity/executor/locals half of f, the value
// Current returns while code is running inside f.
func (f *Fiber[T]) Base() *Base { return f.base }

// Spawn starts task running on exec inside a new Fiber and returns
// immediately. The new fiber inherits a snapshot of the calling fiber's
// locals taken at spawn time (spec §8's fiber-local inheritance scenario):
// later Set/Clear calls on either fiber do not affect the other. If exec is
// nil, the fiber inherits the calling fiber's executor, or the default pool
// if there is no calling fiber; either way, a pool is pinned down to one
// fixed worker (spec §4.8 getOneExec) rather than bound to the whole pool,
// and an already fiber-wrapped executor is unwrapped first (spec §4.7
// Construction: "Unwrap if an already-wrapped executor was passed"). If name
// is "", a name of the form "Fiber-N" is assigned from a monotonically
// increasing counter.
func Spawn[T any](name string, exec asyncrt.Executor, task func() asyncrt.Async[T]) *Fiber[T] {
	parent, hasParent := Current()
	if exec == nil {
		if hasParent {
			exec = parent.exec
		} else {
			exec = asyncrt.DefaultPool()
		}
	}
	exec = pin(unwrap(exec))
	if name == "" {
		name = nextAnonymousName()
	}
	base := &Base{
		id:     uuid.New(),
		name:   name,
		parent: parent,
		trace:  traceEnabled(),
		locals: inheritedLocals(parent),
	}
	base.exec = wrap(base, exec)

	result := NewPromise[T]()
	f := &Fiber[T]{base: base, task: result}
	register(base)

	base.exec.Submit(func() {
		defer unregister(base)
		a, perr := runTask(task)
		if perr != nil {
			base.recordPanic(perr.Info)
			result.CompleteResult(asyncrt.Failure[T](perr))
			return
		}
		a.OnCompletion(result.CompleteResult)
	})
	return f
}

func runTask[T any](task func() asyncrt.Async[T]) (a asyncrt.Async[T], perr *asyncrt.PanicError) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*asyncrt.PanicError); ok {
				perr = pe
			} else {
				perr = &asyncrt.PanicError{Info: r}
			}
		}
	}()
	return task(), nil
}

// Join returns an Async that completes when task returns (spec §4.7).
// Cancelling the join forwards into task. Ordinarily this just hands back
// the task's own Async. With tracing enabled, each call instead allocates a
// fresh forwarding Promise so the call-site frame captured here is
// distinguishable from any other join site on the same fiber (spec §4.7:
// "each join call returns a freshly allocated forwarding Promise so that
// caller-side trace frames attach to this particular join site").
func (f *Fiber[T]) Join() asyncrt.Async[T] {
	if !f.base.trace {
		return f.task
	}
	f.base.pushTrace(recordStack())
	fwd := NewPromise[T]()
	f.task.OnCompletion(func(r asyncrt.Result[T]) {
		f.base.popTrace()
		fwd.CompleteResult(r)
	})
	return &joinForward[T]{Promise: fwd, task: f.task}
}

// joinForward is Join's trace-enabled return value: Poll/OnCompletion/Sync
// run through the freshly allocated forwarding Promise, but Cancel (and
// Sync's Cancel(Interrupted) when its ctx ends) forwards straight into the
// underlying task (spec §4.7: "cancelling the join
// forwards cancel into the task").
type joinForward[T any] struct {
	*asyncrt.Promise[T]
	task asyncrt.Async[T]
}

var _ asyncrt.Async[int] = (*joinForward[int])(nil)

func (j *joinForward[T]) Cancel(reason error) { j.task.Cancel(reason) }

// Sync waits on the forwarding Promise; if ctx ends first, Cancel(Interrupted)
// is forwarded into the underlying task, as Cancel is.
func (j *joinForward[T]) Sync(ctx context.Context) (T, error) {
	v, err := j.Promise.Sync(ctx)
	if _, done := j.Promise.Poll(); !done {
		j.Cancel(asyncrt.Interrupted)
	}
	return v, err
}

// NewPromise is a thin re-export so this file doesn't need a second import
// alias; fiber's joiner is plain asyncrt.Promise machinery.
func NewPromise[T any]() *asyncrt.Promise[T] { return asyncrt.NewPromise[T]() }
