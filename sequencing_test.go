package asyncrt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTailChainBoundedStack exercises the trampolining requirement directly:
// a hundred-thousand-deep Then chain, built recursively, must complete
// without a stack overflow even though every link is "already ready" the
// instant it is constructed.
func TestTailChainBoundedStack(t *testing.T) {
	const depth = 100000

	var echo func(n int) Async[Void]
	echo = func(n int) Async[Void] {
		if n == 0 {
			return Ready(Void{})
		}
		return Then(VoidAsync(), func(Void) Async[Void] {
			return echo(n - 1)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := echo(depth).Sync(ctx)
	require.NoError(t, err)
}

func TestMap(t *testing.T) {
	out := Map(Ready(21), func(v int) int { return v * 2 })
	v, err := out.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestMapPropagatesFailure(t *testing.T) {
	sentinel := errors.New("boom")
	out := Map(Failed[int](sentinel), func(v int) int { return v * 2 })
	_, err := out.Sync(context.Background())
	assert.ErrorIs(t, err, sentinel)
}

func TestMapRecoversPanic(t *testing.T) {
	out := Map(Ready(1), func(int) int { panic("nope") })
	_, err := out.Sync(context.Background())
	require.Error(t, err)
	var pe *PanicError
	assert.ErrorAs(t, err, &pe)
}

func TestThenSequencesAsync(t *testing.T) {
	out := Then(Ready(2), func(v int) Async[int] {
		return Ready(v + 40)
	})
	v, err := out.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCatchRecoversMatchingError(t *testing.T) {
	sentinel := &TimeoutError{Duration: time.Second}
	out := Catch[int, *TimeoutError](Failed[int](sentinel), func(e *TimeoutError) int {
		return -1
	})
	v, err := out.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, v)
}

func TestCatchIgnoresNonMatchingError(t *testing.T) {
	sentinel := errors.New("other")
	out := Catch[int, *TimeoutError](Failed[int](sentinel), func(e *TimeoutError) int {
		return -1
	})
	_, err := out.Sync(context.Background())
	assert.ErrorIs(t, err, sentinel)
}

func TestFinallyRunsRegardlessOfOutcome(t *testing.T) {
	ran := false
	out := Finally(Ready(5), func() { ran = true })
	v, err := out.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.True(t, ran)

	ran = false
	sentinel := errors.New("boom")
	out2 := Finally(Failed[int](sentinel), func() { ran = true })
	_, err = out2.Sync(context.Background())
	assert.ErrorIs(t, err, sentinel)
	assert.True(t, ran)
}

// TestCancelPropagation mirrors the spec scenario: a node created from a
// not-yet-completed Promise is cancelled before the upstream settles; once
// the upstream does settle, the freshly produced downstream Async must
// observe the latched cancel reason immediately.
func TestCancelPropagation(t *testing.T) {
	upstream := NewPromise[Void]()
	var observed error
	observedCh := make(chan error, 1)

	downstream := Then(Async[Void](upstream), func(Void) Async[Void] {
		inner := NewPromise[Void]()
		inner.OnCancel(func(reason error) {
			observed = reason
			observedCh <- reason
		})
		return inner
	})

	sentinel := errors.New("E")
	downstream.Cancel(sentinel)

	upstream.Complete(Void{}, nil)

	select {
	case <-observedCh:
		assert.Equal(t, sentinel, observed)
	case <-time.After(time.Second):
		t.Fatal("inner promise never observed the latched cancel reason")
	}
}

func TestCovaryChecksAssignability(t *testing.T) {
	type base struct{ N int }
	out := Covary[base, any](Ready(base{N: 1}))
	v, err := out.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, base{N: 1}, v)
}
