package asyncrt

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/Jeffail/tunny"
	"github.com/gammazero/deque"
	"github.com/gammazero/workerpool"
	"github.com/panjf2000/ants/v2"
	conc "github.com/sourcegraph/conc/pool"
	"go.uber.org/atomic"
)

// Pool is the default Executor (spec §4.1's "N single-consumer workers"): a
// fixed-size ring of poolWorker goroutines, each with an unsynchronized local
// deque plus a mutex-guarded remote inbox. Submitting from outside any worker
// round-robins across the ring; submitting from a task the worker runs
// directly, while CurrentExecutor() is that worker (worker affinity, spec
// §4.6), pushes straight onto that worker's local deque with no locking at
// all. Inside a fiber's task CurrentExecutor() is the fiber's bound executor,
// so such submissions take the round-robin and remote-inbox path. It mirrors the teacher future.Pool /
// pkg/sync.Pool adapter shape but with a real work-stealing-free scheduler
// underneath instead of delegating everything to a third-party pool.
type Pool struct {
	mu        sync.Mutex
	workers   []*poolWorker
	n         int
	keepAlive time.Duration
	next      atomic.Uint64
}

var _ Executor = (*Pool)(nil)

// PoolOption configures a Pool at construction (spec §6 ambient configuration
// surface, mirroring the teacher's functional-option idiom in flow/builder.go).
type PoolOption func(*Pool)

// WithWorkers sets the worker count. Non-positive values fall back to
// runtime.GOMAXPROCS(0).
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.n = n
		}
	}
}

// WithKeepAlive sets how long an idle worker waits for new work before its
// goroutine exits (respawned lazily on the next Submit routed to its slot).
func WithKeepAlive(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.keepAlive = d
		}
	}
}

// NewPool constructs a running Pool. Workers are spawned lazily on first use
// of their slot, not eagerly at construction, so an unused slot costs nothing
// until it is actually routed a task.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		n:         runtime.GOMAXPROCS(0),
		keepAlive: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	if p.n < 1 {
		p.n = 1
	}
	p.workers = make([]*poolWorker, p.n)
	return p
}

// Submit implements Executor: round-robins across the worker ring, spawning a
// worker goroutine for the chosen slot if it is currently idle-exited or never
// started.
func (p *Pool) Submit(task func()) {
	p.pickWorker().Submit(task)
}

// Worker returns one fixed worker of the pool (spec §4.8's getOneExec()): if
// CurrentExecutor() is already one of this Pool's own workers, that same
// worker is returned (affinity), otherwise the next
// worker is chosen round-robin and returned. Unlike Submit, which picks a
// worker fresh on every call, Worker hands back a single Executor a caller
// can hold onto and keep submitting to — the shape fiber.Spawn needs to pin
// a fiber to one serial consumer instead of letting the whole Pool
// round-robin the fiber's own continuations across workers.
func (p *Pool) Worker() Executor {
	return p.pickWorker()
}

// pickWorker implements the affinity-or-round-robin selection shared by
// Submit and Worker, spawning a worker goroutine for the chosen slot if it is
// currently idle-exited or never started.
func (p *Pool) pickWorker() *poolWorker {
	if cur, ok := currentExecutorSlot.Get(); ok {
		if w, ok := cur.(*poolWorker); ok && w.pool == p {
			return w
		}
	}
	idx := int(p.next.Add(1)-1) % p.n
	p.mu.Lock()
	w := p.workers[idx]
	if w == nil {
		w = newPoolWorker(p, idx)
		p.workers[idx] = w
		goRecovered(func() { w.run() })
	}
	p.mu.Unlock()
	return w
}

func (p *Pool) onWorkerIdleExit(w *poolWorker) {
	p.mu.Lock()
	if p.workers[w.id] == w {
		p.workers[w.id] = nil
	}
	p.mu.Unlock()
}

// poolWorker is a single serial consumer: an unsynchronized local deque
// (touched only by its own goroutine, whether draining work or accepting a
// same-worker resubmission) and a mutex-guarded remote inbox other goroutines
// append to.
type poolWorker struct {
	pool *Pool
	id   int

	local deque.Deque[func()]

	remoteMu       sync.Mutex
	remote         []func()
	remoteNonEmpty atomic.Bool

	wake chan struct{}
}

var _ Executor = (*poolWorker)(nil)

func newPoolWorker(p *Pool, id int) *poolWorker {
	return &poolWorker{pool: p, id: id, wake: make(chan struct{}, 1)}
}

// Submit implements Executor. Called while CurrentExecutor() is this worker
// (worker affinity: a task the worker runs directly), it pushes straight onto
// the unsynchronized local deque; called from anywhere else, including a
// fiber task whose current executor is the fiber's bound executor, it appends
// to the remote inbox under a mutex and wakes the worker if it is parked.
func (w *poolWorker) Submit(task func()) {
	if cur, ok := currentExecutorSlot.Get(); ok && cur == Executor(w) {
		w.local.PushBack(task)
		return
	}
	w.remoteMu.Lock()
	w.remote = append(w.remote, task)
	w.remoteMu.Unlock()
	w.remoteNonEmpty.Store(true)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *poolWorker) run() {
	idle := time.NewTimer(w.pool.keepAlive)
	defer idle.Stop()
	for {
		if w.local.Len() > 0 {
			task := w.local.PopFront()
			w.runTask(task)
			resetIdleTimer(idle, w.pool.keepAlive)
			continue
		}
		if w.remoteNonEmpty.Load() {
			w.remoteMu.Lock()
			pending := w.remote
			w.remote = nil
			w.remoteMu.Unlock()
			w.remoteNonEmpty.Store(false)
			for _, t := range pending {
				w.local.PushBack(t)
			}
			continue
		}
		select {
		case <-w.wake:
			continue
		case <-idle.C:
			w.pool.onWorkerIdleExit(w)
			return
		}
	}
}

func (w *poolWorker) runTask(task func()) {
	RunOn(w, withRecover(task, func(pe *PanicError) {
		Log().Warn("asyncrt: recovered panic in pool worker", "error", pe)
	}))
}

func resetIdleTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

var defaultPool atomic.Pointer[Pool]

func init() {
	defaultPool.Store(newDefaultPool())
}

func newDefaultPool() *Pool {
	keepAlive := 100 * time.Millisecond
	if ms := os.Getenv("ASYNCRT_KEEPALIVE_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			keepAlive = time.Duration(v) * time.Millisecond
		}
	}
	return NewPool(WithKeepAlive(keepAlive))
}

// DefaultPool returns the package-wide default Executor.
func DefaultPool() Executor {
	return defaultPool.Load()
}

// SetDefaultPool replaces the package-wide default Executor's backing Pool.
// Passing nil has no effect.
func SetDefaultPool(p *Pool) {
	if p == nil {
		return
	}
	defaultPool.Store(p)
}

// ExecutorOfWorkerpool adapts a gammazero/workerpool.WorkerPool. Panics if
// pool is nil, matching the teacher's future.PoolOfWorkerpool.
func ExecutorOfWorkerpool(pool *workerpool.WorkerPool) Executor {
	if pool == nil {
		panic("asyncrt: workerpool pool is nil")
	}
	return ExecutorFunc(func(task func()) { pool.Submit(task) })
}

// ExecutorOfAnts adapts a panjf2000/ants.Pool. Panics if pool is nil.
func ExecutorOfAnts(pool *ants.Pool) Executor {
	if pool == nil {
		panic("asyncrt: ants pool is nil")
	}
	return ExecutorFunc(func(task func()) { _ = pool.Submit(task) })
}

// ExecutorOfConc adapts a sourcegraph/conc/pool.Pool. Panics if pool is nil.
func ExecutorOfConc(pool *conc.Pool) Executor {
	if pool == nil {
		panic("asyncrt: conc pool is nil")
	}
	return ExecutorFunc(func(task func()) { pool.Go(task) })
}

// ExecutorOfTunny adapts a Jeffail/tunny.Pool. Since tunny.Pool.Process
// blocks the caller until a worker is free, each Submit hands the task to
// Process from its own recovered goroutine so Submit itself stays
// non-blocking, with tunny's own worker count bounding how many run at once.
func ExecutorOfTunny(pool *tunny.Pool) Executor {
	if pool == nil {
		panic("asyncrt: tunny pool is nil")
	}
	return ExecutorFunc(func(task func()) {
		goRecovered(func() { pool.Process(task) })
	})
}
