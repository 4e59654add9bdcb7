// Package iter provides AsyncIterator[T] (spec §4.5): a lazy sequence of
// values pulled one Async[T] at a time. It is built entirely on the root
// asyncrt package's sequencing engine, so every combinator here inherits that
// engine's trampolining — a long Filter/FlatMap/Reduce chain over a large or
// infinite source never grows the call stack.
package iter

import "github.com/tangerg/asyncrt"

// AsyncIterator produces a lazy sequence of values. Next returns an Async
// that fails with asyncrt.End once the sequence is exhausted; End is not a
// real error and every terminal operation in this package treats it as
// "stop, don't propagate" rather than a failure.
type AsyncIterator[T any] interface {
	Next() asyncrt.Async[T]
}

// Func adapts a plain function into an AsyncIterator.
type Func[T any] func() asyncrt.Async[T]

// Next implements AsyncIterator.
func (f Func[T]) Next() asyncrt.Async[T] { return f() }
