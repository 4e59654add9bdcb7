package asyncrt

import (
	"errors"
	"fmt"
	"time"
)

// End is the distinguished, non-error control signal an AsyncIterator's
// next() fails with to mark end-of-sequence (spec §3, §4.6, GLOSSARY).
var End = errors.New("asyncrt: end of iteration")

// ErrAlreadyCompleted is the producer-bug error kind from spec §7: completing
// a Promise that has already transitioned to completed. Promise.Complete and
// Promise.CompleteResult do not return or raise it; a second completion is
// ignored. It is never returned from the read side.
var ErrAlreadyCompleted = errors.New("asyncrt: promise already completed")

// ErrNullResult is the misuse error kind from spec §7, raised when a
// predicate used by filter/someOf-style callers returns an ambiguous
// null-equivalent boolean; reserved for callers building on top of asyncrt
// that need a distinguishable misuse signal.
var ErrNullResult = errors.New("asyncrt: predicate returned an ambiguous result")

// CancelledError is the cooperative-cancellation error kind (spec §7),
// carrying the reason argument passed to Cancel.
type CancelledError struct {
	Reason error
}

func (e *CancelledError) Error() string {
	if e.Reason == nil {
		return "asyncrt: cancelled"
	}
	return "asyncrt: cancelled: " + e.Reason.Error()
}

func (e *CancelledError) Unwrap() error { return e.Reason }

// Cancelled wraps reason (which may be nil) as a *CancelledError.
func Cancelled(reason error) error {
	return &CancelledError{Reason: reason}
}

// TimeoutError is the Timeout error kind (spec §7): raised by WithTimeout
// when duration elapses before the wrapped Async completes.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("asyncrt: timed out after %s", e.Duration)
}

// Timeout builds a cancellation reason carrying the elapsed duration; passed
// to Cancel by the timeout node (timeout.go) and returned, wrapped in
// CancelledError, to callers awaiting the timed-out Async.
func Timeout(d time.Duration) error {
	return &TimeoutError{Duration: d}
}

// Interrupted is the Interrupted error kind (spec §7): the reason Sync
// delivers to the Async it is waiting on when the waiting context is
// cancelled or the waiting goroutine otherwise gives up.
var Interrupted = errors.New("asyncrt: interrupted")

// OverLimitError is the bundle error kind (spec §7, §4.5): raised by the
// someOf trigger when the success threshold has become unreachable. Cause
// holds every individual child failure collected so far, combined with
// go.uber.org/multierr so each remains visible to errors.Is/As.
type OverLimitError struct {
	Threshold int
	Failures  []error
	Cause     error
}

func (e *OverLimitError) Error() string {
	return fmt.Sprintf("asyncrt: threshold of %d successes is unreachable: %v", e.Threshold, e.Cause)
}

func (e *OverLimitError) Unwrap() error { return e.Cause }

// IsEnd reports whether err is (or wraps) the iteration End sentinel.
func IsEnd(err error) bool {
	return errors.Is(err, End)
}

// IsTimeout reports whether err is (or wraps) a *TimeoutError, looking
// through a *CancelledError the way Cancel/Timeout deliver it.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}

// IsCancelled reports whether err is (or wraps) a *CancelledError.
func IsCancelled(err error) bool {
	var c *CancelledError
	return errors.As(err, &c)
}
