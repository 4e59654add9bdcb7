package asyncrt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSubmitRunsAsynchronously(t *testing.T) {
	p := NewPool(WithWorkers(2))
	done := make(chan struct{})
	ran := false
	p.Submit(func() {
		ran = true
		close(done)
	})
	assert.False(t, ran, "Submit must return before the task runs")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted task never ran")
	}
}

func TestPoolPreservesPerGoroutineOrderingViaAffinity(t *testing.T) {
	p := NewPool(WithWorkers(4))
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(1)

	p.Submit(func() {
		// worker-affine resubmission: these must all land on the same
		// worker's local deque and run in submission order.
		for i := 0; i < 5; i++ {
			i := i
			CurrentExecutor().Submit(func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				if i == 4 {
					wg.Done()
				}
			})
		}
	})

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPoolIdleWorkerRespawnsOnNextSubmit(t *testing.T) {
	p := NewPool(WithWorkers(1), WithKeepAlive(5*time.Millisecond))

	first := make(chan struct{})
	p.Submit(func() { close(first) })
	<-first

	time.Sleep(30 * time.Millisecond) // let the sole worker idle-exit

	second := make(chan struct{})
	p.Submit(func() { close(second) })
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("pool failed to respawn a worker for a fresh Submit")
	}
}

func TestDefaultPoolIsUsableAsCurrentExecutor(t *testing.T) {
	done := make(chan struct{})
	DefaultPool().Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DefaultPool never ran the submitted task")
	}
}
