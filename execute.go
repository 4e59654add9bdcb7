package asyncrt

import (
	"context"
	"os"
	"strconv"

	"golang.org/x/sync/semaphore"
)

const defaultBlockingPoolSize = 64

var blockingSemaphore = semaphore.NewWeighted(blockingPoolSizeFromEnv())

func blockingPoolSizeFromEnv() int64 {
	if s := os.Getenv("ASYNCRT_BLOCKING_POOL_SIZE"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return int64(v)
		}
	}
	return defaultBlockingPoolSize
}

// Execute adapts a blocking action (spec §6: "the one blocking collaborator
// the runtime assumes"; see executor.go's note that serial Executors must
// never host blocking work) into an Async[T]. It runs on its own recovered
// goroutine, admitted through a weighted semaphore that caps how many
// blocking actions run concurrently across the whole process, independent of
// the default pool's worker count. Cancelling the returned Async cancels the
// derived context passed to action; honoring that is action's responsibility
// (best-effort interruption, not preemption).
func Execute[T any](ctx context.Context, action func(ctx context.Context) (T, error)) Async[T] {
	p := NewPromise[T]()
	runCtx, cancel := context.WithCancel(ctx)

	p.OnCancel(func(reason error) {
		cancel()
	})

	goRecovered(func() {
		defer cancel()
		if err := blockingSemaphore.Acquire(runCtx, 1); err != nil {
			p.CompleteResult(Failure[T](err))
			return
		}
		defer blockingSemaphore.Release(1)
		v, err := action(runCtx)
		p.Complete(v, err)
	})

	return p
}
