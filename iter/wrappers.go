package iter

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tangerg/asyncrt"
)

// FromSlice returns an AsyncIterator walking items in order. Each step is
// already completed — there is no real asynchrony — which makes it useful
// both in tests and for feeding an in-memory batch through the same
// combinators a truly async source would use.
func FromSlice[T any](items []T) AsyncIterator[T] {
	var idx atomic.Int64
	return Func[T](func() asyncrt.Async[T] {
		i := idx.Add(1) - 1
		if int(i) >= len(items) {
			return asyncrt.Failed[T](asyncrt.End)
		}
		return asyncrt.Ready(items[i])
	})
}

// FromFunc adapts next directly into an AsyncIterator: it is called once per
// Next and is trusted to return asyncrt.End itself once exhausted.
func FromFunc[T any](next func() asyncrt.Async[T]) AsyncIterator[T] {
	return Func[T](next)
}

// Closable is a resource-backed source that must be released once iteration
// stops — the shape a blocking reader-based iterator naturally has (mirrors
// io.Closer). Next follows the io.Reader convention of returning io.EOF (or
// any error satisfying errors.Is(err, io.EOF)) to signal exhaustion.
type Closable[T any] interface {
	Next() (T, error)
	Close() error
}

// FromClosable adapts a Closable into an AsyncIterator, running each Next
// call through asyncrt.Execute so a blocking source never stalls a serial
// Executor. Close runs exactly once — on the first io.EOF, on any other
// error, or when the returned stop func is called directly (e.g. because the
// caller broke out of a ForEach loop early). A Close error is logged rather
// than surfaced, since by the time it runs the iterator has already produced
// its terminal Result.
func FromClosable[T any](ctx context.Context, src Closable[T]) (it AsyncIterator[T], stop func()) {
	var once sync.Once
	doClose := func() {
		once.Do(func() {
			if err := src.Close(); err != nil {
				asyncrt.Log().Warn("asyncrt/iter: close failed", "error", err)
			}
		})
	}

	it = Func[T](func() asyncrt.Async[T] {
		pulled := asyncrt.Execute(ctx, func(ctx context.Context) (T, error) {
			return src.Next()
		})
		return asyncrt.Transform(pulled, func(r asyncrt.Result[T]) asyncrt.Async[T] {
			if r.IsFailure() {
				if errors.Is(r.Err(), io.EOF) {
					doClose()
					return asyncrt.Failed[T](asyncrt.End)
				}
				doClose()
			}
			return asyncrt.Completed(r)
		})
	})
	return it, doClose
}
