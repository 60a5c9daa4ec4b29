package queue

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desc(a, b int) int { return cmp.Compare(b, a) }

func TestTopNKeepsBest(t *testing.T) {
	q := NewTopN(3, desc)
	for _, v := range []int{5, 1, 9, 3, 7, 2} {
		q.Offer(v)
	}

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 6, q.Seen())
	assert.True(t, q.Dropped())

	worst, ok := q.Worst()
	require.True(t, ok)
	assert.Equal(t, 5, worst)

	assert.Equal(t, []int{9, 7, 5}, q.Drain())
	assert.Equal(t, 0, q.Len())
}

func TestTopNUnbounded(t *testing.T) {
	q := NewTopN(-1, desc)
	for _, v := range []int{2, 8, 4} {
		assert.True(t, q.Offer(v))
	}
	assert.False(t, q.Dropped())
	assert.Equal(t, []int{8, 4, 2}, q.Drain())
}

func TestTopNZero(t *testing.T) {
	q := NewTopN(0, desc)
	assert.False(t, q.Offer(1))
	assert.True(t, q.Dropped())
	assert.Empty(t, q.Drain())

	_, ok := q.Worst()
	assert.False(t, ok)
}

func TestTopNTiesKeepFirst(t *testing.T) {
	type item struct {
		key   string
		count int
	}
	q := NewTopN(2, func(a, b item) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	q.Offer(item{"b", 1})
	q.Offer(item{"c", 1})
	assert.False(t, q.Offer(item{"d", 1}))
	assert.True(t, q.Offer(item{"a", 1}))

	assert.Equal(t, []item{{"a", 1}, {"b", 1}}, q.Drain())
}

func TestTopNReset(t *testing.T) {
	q := NewTopN(2, desc)
	q.Offer(1)
	q.Offer(2)
	q.Offer(3)
	q.Reset()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Seen())
	q.Offer(4)
	assert.Equal(t, []int{4}, q.Drain())
}
