package asyncrt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromise_CompleteOnce(t *testing.T) {
	p := NewPromise[int]()

	done := make(chan Result[int], 2)
	p.OnCompletion(func(r Result[int]) { done <- r })

	p.Complete(7, nil)
	p.Complete(9, nil) // second completion must be a no-op

	r := <-done
	assert.True(t, r.IsSuccess())
	assert.Equal(t, 7, r.Value())

	r2, ok := p.Poll()
	require.True(t, ok)
	assert.Equal(t, 7, r2.Value())
}

func TestPromise_OnCompletionAfterCompletion(t *testing.T) {
	p := NewPromise[string]()
	p.Complete("done", nil)

	var got string
	done := make(chan struct{})
	p.OnCompletion(func(r Result[string]) {
		got = r.Value()
		close(done)
	})
	<-done
	assert.Equal(t, "done", got)
}

func TestPromise_CancelLatchesFirstReason(t *testing.T) {
	p := NewPromise[int]()
	r1 := errors.New("first")
	r2 := errors.New("second")

	p.Cancel(r1)
	p.Cancel(r2)

	reason, latched := p.PollCancel()
	require.True(t, latched)
	assert.Equal(t, r1, reason)
}

func TestPromise_CancelDispatchesCurrentListener(t *testing.T) {
	p := NewPromise[int]()
	reason := errors.New("stop")

	got := make(chan error, 1)
	p.OnCancel(func(r error) { got <- r })
	p.Cancel(reason)

	select {
	case r := <-got:
		assert.Equal(t, reason, r)
	case <-time.After(time.Second):
		t.Fatal("cancel listener was never invoked")
	}
}

func TestPromise_OnCancelLateRegistrationAfterLatch(t *testing.T) {
	p := NewPromise[int]()
	reason := errors.New("late")
	p.Cancel(reason)

	got := make(chan error, 1)
	p.OnCancel(func(r error) { got <- r })

	select {
	case r := <-got:
		assert.Equal(t, reason, r)
	case <-time.After(time.Second):
		t.Fatal("listener registered after latch was never dispatched")
	}
}

func TestPromise_Sync(t *testing.T) {
	p := NewPromise[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Complete(42, nil)
	}()

	v, err := p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPromise_SyncContextCancelled(t *testing.T) {
	p := NewPromise[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Sync(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	reason, latched := p.PollCancel()
	require.True(t, latched)
	assert.ErrorIs(t, reason, Interrupted)
}

func TestCompletedHelpers(t *testing.T) {
	v, err := Ready("ok").Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	sentinel := errors.New("boom")
	_, err = Failed[string](sentinel).Sync(context.Background())
	assert.ErrorIs(t, err, sentinel)
}
