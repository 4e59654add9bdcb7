package iter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangerg/asyncrt"
)

func TestMapTransformsEachElement(t *testing.T) {
	it := Map(FromSlice([]int{1, 2, 3}), func(v int) int { return v * 10 })
	got, err := ToList(it).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30}, got)
}

func TestPeekObservesWithoutAltering(t *testing.T) {
	var seen []int
	it := Peek(FromSlice([]int{1, 2, 3}), func(v int) { seen = append(seen, v) })
	got, err := ToList(it).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

// TestFilterSkipsWithoutGrowingStack mirrors the spec scenario of a long run
// of consecutive skips: every skip is a trampoline hop, not a recursive call,
// so filtering a large prefix of non-matches must still complete.
func TestFilterSkipsWithoutGrowingStack(t *testing.T) {
	items := make([]int, 50000)
	items[len(items)-1] = 7
	it := Filter(FromSlice(items), func(v int) bool { return v != 0 })

	v, err := it.Next().Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = it.Next().Sync(context.Background())
	require.Error(t, err)
	assert.True(t, asyncrt.IsEnd(err))
}

func TestFilterPropagatesNonEndFailure(t *testing.T) {
	sentinel := errors.New("boom")
	it := FromFunc(func() asyncrt.Async[int] { return asyncrt.Failed[int](sentinel) })
	filtered := Filter(it, func(int) bool { return true })
	_, err := filtered.Next().Sync(context.Background())
	assert.ErrorIs(t, err, sentinel)
}

func TestFlatMapFlattensNestedIterators(t *testing.T) {
	outer := FromSlice([]int{1, 2, 3})
	nested := FlatMap(outer, func(v int) AsyncIterator[int] {
		return FromSlice([]int{v, v * 10})
	})
	got, err := ToList(nested).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 10, 2, 20, 3, 30}, got)
}

func TestFlatMapWithEmptyNestedIterators(t *testing.T) {
	outer := FromSlice([]int{1, 2, 3})
	nested := FlatMap(outer, func(v int) AsyncIterator[int] {
		if v == 2 {
			return FromSlice([]int(nil))
		}
		return FromSlice([]int{v})
	})
	got, err := ToList(nested).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got)
}
