package fiber

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangerg/asyncrt"
)

func TestLocalSetGetWithinFiber(t *testing.T) {
	local := NewLocal[int]()
	f := Spawn[int]("l", nil, func() asyncrt.Async[int] {
		ok := local.Set(7)
		require.True(t, ok)
		v, got := local.Get()
		require.True(t, got)
		return asyncrt.Ready(v)
	})
	v, err := f.Join().Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestLocalSetStoresZeroValueDistinctFromUnset(t *testing.T) {
	local := NewLocal[int]()
	f := Spawn[bool]("l", nil, func() asyncrt.Async[bool] {
		_, unsetOK := local.Get()
		local.Set(0)
		_, setOK := local.Get()
		return asyncrt.Ready(!unsetOK && setOK)
	})
	v, err := f.Join().Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, v, "zero-valued Set must be distinguishable from never having been set")
}

func TestLocalClearRestoresUnsetState(t *testing.T) {
	local := NewLocal[string]()
	f := Spawn[bool]("l", nil, func() asyncrt.Async[bool] {
		local.Set("x")
		local.Clear()
		_, ok := local.Get()
		return asyncrt.Ready(ok)
	})
	v, err := f.Join().Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, v)
}

func TestLocalGetOutsideFiberReportsUnset(t *testing.T) {
	local := NewLocal[int]()
	_, ok := local.Get()
	assert.False(t, ok)
}

func TestLocalSetOutsideFiberReportsFalse(t *testing.T) {
	local := NewLocal[int]()
	ok := local.Set(1)
	assert.False(t, ok)
}
