package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupSet_InsertAndContains(t *testing.T) {
	d := newDedupSet(3)
	assert.False(t, d.contains("a"))

	d.insert("a")
	assert.True(t, d.contains("a"))
	assert.Equal(t, 1, d.size())
}

func TestDedupSet_InsertIsIdempotent(t *testing.T) {
	d := newDedupSet(3)
	d.insert("a")
	d.insert("a")
	assert.Equal(t, 1, d.size())
}

func TestDedupSet_EvictsOldestAtCapacity(t *testing.T) {
	d := newDedupSet(2)
	d.insert("a")
	d.insert("b")
	d.insert("c") // evicts "a"

	assert.False(t, d.contains("a"))
	assert.True(t, d.contains("b"))
	assert.True(t, d.contains("c"))
	assert.Equal(t, 2, d.size())
}

func TestDedupSet_CapacityFloorsAtOne(t *testing.T) {
	d := newDedupSet(0)
	d.insert("a")
	d.insert("b")
	assert.Equal(t, 1, d.size())
	assert.True(t, d.contains("b"))
}
