package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFIFO_PushPopOrder(t *testing.T) {
	q := newFIFO[int](3)

	assert.False(t, q.push(1))
	assert.False(t, q.push(2))
	assert.Equal(t, 2, q.len())

	v, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestFIFO_DropOldestAtCapacity(t *testing.T) {
	q := newFIFO[int](2)

	assert.False(t, q.push(1))
	assert.False(t, q.push(2))
	assert.True(t, q.push(3)) // drops 1

	v, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = q.pop()
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestFIFO_RemoveMatching(t *testing.T) {
	q := newFIFO[int](5)
	for _, v := range []int{1, 2, 3, 4, 5} {
		q.push(v)
	}

	removed := q.removeMatching(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, q.len())

	var remaining []int
	for {
		v, ok := q.pop()
		if !ok {
			break
		}
		remaining = append(remaining, v)
	}
	assert.Equal(t, []int{1, 3, 5}, remaining)
}

func TestFIFO_CapacityFloorsAtOne(t *testing.T) {
	q := newFIFO[int](0)
	assert.False(t, q.push(1))
	assert.True(t, q.push(2))
	assert.Equal(t, 1, q.len())
}
