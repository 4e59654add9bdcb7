package asyncrt

import (
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/atomic"
)

// PanicError is a recovered panic with its timestamp and stack trace
// attached, so Logger warnings carry a structured value instead of a bare
// recover() result. Adapted from the teacher's pkg/safe.PanicError.
type PanicError struct {
	At    time.Time
	Info  any
	Stack []byte
	cache atomic.Pointer[string]
}

func newPanicError(info any) *PanicError {
	return &PanicError{
		At:    time.Now(),
		Info:  info,
		Stack: debug.Stack(),
	}
}

// Error renders the panic with timestamp, payload and stack trace, caching
// the formatted message the way pkg/safe.PanicError does to avoid
// reformatting a (potentially large) stack trace on repeated Error() calls.
func (e *PanicError) Error() string {
	if e.cache.Load() == nil {
		msg := fmt.Sprintf("panic: %v\n%s", e.Info, e.Stack)
		e.cache.Store(&msg)
	}
	return *e.cache.Load()
}

// withRecover wraps fn so that a panic is converted into a call to onPanic
// instead of propagating, mirroring pkg/safe.WithRecover. The runtime never
// lets a programmer-error panic inside a registered callback corrupt the
// executor that is running it (spec §4.7: "Callbacks that throw are caught
// at the fiber-executor wrapper boundary and logged, never propagated into
// the scheduler.").
func withRecover(fn func(), onPanic func(*PanicError)) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				if onPanic != nil {
					onPanic(newPanicError(r))
				}
			}
		}()
		fn()
	}
}

// goRecovered launches fn in a new goroutine with panic recovery, logging
// any recovered panic via the package Logger. Mirrors pkg/safe.Go /
// future.PoolOfGoroutines's inline recover, used by ExecutorOfGoroutines.
func goRecovered(fn func()) {
	go withRecover(fn, func(pe *PanicError) {
		Log().Warn("asyncrt: recovered panic in goroutine", "error", pe)
	})()
}
