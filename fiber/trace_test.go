package fiber

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangerg/asyncrt"
)

func TestJoinAllocatesForwardingPromiseWhenTracing(t *testing.T) {
	t.Setenv("ASYNCRT_TRACE", "1")
	release := make(chan struct{})
	f := Spawn[int]("traced", nil, func() asyncrt.Async[int] {
		<-release
		return asyncrt.Ready(1)
	})

	j1 := f.Join()
	j2 := f.Join()
	assert.NotSame(t, j1, j2, "each Join call must allocate its own forwarding Promise while tracing is on")

	frames := f.Base().GetStackTrace()
	assert.Len(t, frames, 2, "one recorded frame per outstanding join call")

	close(release)
	v1, err := j1.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v1)
	v2, err := j2.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v2)

	deadline := time.After(time.Second)
	for {
		if len(f.Base().GetStackTrace()) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("join frames were never popped after completion")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestJoinReusesTaskAsyncWhenNotTracing(t *testing.T) {
	f := Spawn[int]("untraced", nil, func() asyncrt.Async[int] {
		return asyncrt.Ready(9)
	})
	assert.Same(t, f.Join(), f.Join(), "without tracing, every Join call returns the same underlying Async")
}

func TestGetStackTracePrependsLiveFrameFromWithinFiber(t *testing.T) {
	t.Setenv("ASYNCRT_TRACE", "1")
	seen := make(chan int, 1)
	f := Spawn[asyncrt.Void]("self-trace", nil, func() asyncrt.Async[asyncrt.Void] {
		b, ok := Current()
		require.True(t, ok)
		seen <- len(b.GetStackTrace())
		return asyncrt.VoidAsync()
	})
	_, err := f.Join().Sync(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, <-seen, 1, "GetStackTrace called from inside the fiber itself must include the live call stack")
}
