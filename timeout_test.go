package asyncrt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeoutWinsWhenFasterThanDeadline(t *testing.T) {
	out := WithTimeout(Sleep(5*time.Millisecond), 500*time.Millisecond)
	_, err := out.Sync(context.Background())
	require.NoError(t, err)
}

func TestWithTimeoutFiresWhenSlowerThanDeadline(t *testing.T) {
	out := WithTimeout(Sleep(500*time.Millisecond), 10*time.Millisecond)
	_, err := out.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, IsCancelled(err))
}

func TestWithTimeoutCancelsUpstream(t *testing.T) {
	upstream := NewPromise[int]()
	out := WithTimeout[int](upstream, 10*time.Millisecond)

	_, err := out.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	reason, latched := upstream.PollCancel()
	require.True(t, latched)
	assert.True(t, IsTimeout(reason))
}

func TestWithTimeoutStopsTimerOnUpstreamCompletion(t *testing.T) {
	out := WithTimeout(Ready(7), time.Hour)
	v, err := out.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestSleepCompletesAfterDuration(t *testing.T) {
	start := time.Now()
	_, err := Sleep(20 * time.Millisecond).Sync(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleepCancelFailsEarly(t *testing.T) {
	s := Sleep(time.Hour)
	sentinel := Timeout(time.Hour)
	s.Cancel(sentinel)

	_, err := s.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
}
