package fiber

import (
	"bytes"
	"os"
	"runtime/debug"
)

// traceEnabled mirrors the root package's ASYNCRT_KEEPALIVE_MS convention
// (pool.go): an env var read once at spawn time, gating whether a fiber
// records join-site stack traces and captures a stack trace when its task
// panics (spec §4.7: "the flag defaults to off due to non-trivial
// overhead").
func traceEnabled() bool {
	switch os.Getenv("ASYNCRT_TRACE") {
	case "1", "true", "TRUE", "True":
		return true
	default:
		return false
	}
}

func recordStack() []byte {
	return debug.Stack()
}

// pushTrace records a captured call-site trace on b (spec §4.7: "each
// pending Promise records the current trace on construction"). asyncrt's
// core Promise has no notion of fibers, so this package only pushes at the
// one place the spec calls out by name: a Join() call while tracing is on,
// which is also the only trace frame whose lifetime — push at the join call,
// pop when the forwarding Promise it backs completes — asyncrt's
// Promise.OnCompletion already gives a clean hook for.
func (b *Base) pushTrace(stack []byte) {
	b.traceMu.Lock()
	b.traceFrames = append(b.traceFrames, stack)
	b.traceMu.Unlock()
}

// popTrace removes the most recently pushed frame, mirroring the
// construction/completion push/pop boundary spec §4.7 describes.
func (b *Base) popTrace() {
	b.traceMu.Lock()
	if n := len(b.traceFrames); n > 0 {
		b.traceFrames = b.traceFrames[:n-1]
	}
	b.traceMu.Unlock()
}

// GetStackTrace snapshots b's recorded join-site frames (spec §4.7): if
// called from b itself, the live call stack is prepended; recorded frames
// follow most-recent-first, with adjacent duplicate frame-sets collapsed.
// Recorded frames exist only if tracing was enabled for b at spawn time;
// without tracing the result is empty, except for the live call stack when
// called from b itself.
func (b *Base) GetStackTrace() [][]byte {
	b.traceMu.Lock()
	frames := make([][]byte, len(b.traceFrames))
	copy(frames, b.traceFrames)
	b.traceMu.Unlock()

	var out [][]byte
	if cur, ok := Current(); ok && cur == b {
		out = append(out, recordStack())
	}
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		if len(out) > 0 && bytes.Equal(out[len(out)-1], f) {
			continue
		}
		out = append(out, f)
	}
	return out
}
