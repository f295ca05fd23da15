package timewarp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sortedByOrder(t *testing.T, items []Event) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		assert.False(t, less(items[i], items[i-1]), "buffer not sorted at index %d", i)
	}
}

func TestEventBuffer_InsertMaintainsOrder(t *testing.T) {
	b := newEventBuffer()
	b.insert(newEvent(3, nil, "c"))
	b.insert(newEvent(1, nil, "a"))
	b.insert(newEvent(2, nil, "b"))

	require.Equal(t, 3, b.len())
	sortedByOrder(t, b.items)

	head, ok := b.peek()
	require.True(t, ok)
	assert.Equal(t, uint64(1), head.LVT)
}

func TestEventBuffer_DuplicateIDDropped(t *testing.T) {
	b := newEventBuffer()
	e := newEvent(5, nil, "x")
	b.insert(e)
	b.insert(e) // same id, same polarity: dropped

	assert.Equal(t, 1, b.len())
}

func TestEventBuffer_AntiAndPositiveCoexistButDedupe(t *testing.T) {
	b := newEventBuffer()
	pos := newEvent(5, nil, "x")
	anti := antiEventOf(pos)

	b.insert(pos)
	b.insert(anti)
	assert.Equal(t, 2, b.len(), "positive and its anti-event must coexist")

	// A second anti-event with the same id is a duplicate of that polarity.
	b.insert(antiEventOf(pos))
	assert.Equal(t, 2, b.len())

	head, ok := b.peek()
	require.True(t, ok)
	assert.False(t, head.IsEvent, "anti-event sorts before its positive twin")
}

func TestEventBuffer_AnnihilateIDRemovesBoth(t *testing.T) {
	b := newEventBuffer()
	pos := newEvent(5, nil, "x")
	anti := antiEventOf(pos)
	b.insert(pos)
	b.insert(anti)

	removed := b.annihilateID(pos.ID)
	assert.Len(t, removed, 2)
	assert.Equal(t, 0, b.len())
}

func TestEventBuffer_AnnihilateUnknownIDNoop(t *testing.T) {
	b := newEventBuffer()
	b.insert(newEvent(1, nil, "a"))

	removed := b.annihilateID(uuid.New())
	assert.Nil(t, removed)
	assert.Equal(t, 1, b.len())
}

func TestEventBuffer_PopRemovesHead(t *testing.T) {
	b := newEventBuffer()
	b.insert(newEvent(1, nil, "a"))
	b.insert(newEvent(2, nil, "b"))

	e, ok := b.pop()
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.LVT)
	assert.Equal(t, 1, b.len())
}

func TestEventBuffer_Filter(t *testing.T) {
	b := newEventBuffer()
	b.insert(newEvent(1, nil, "a"))
	b.insert(newEvent(2, nil, "b"))
	b.insert(newEvent(3, nil, "c"))

	matched := b.filter(func(e Event) bool { return e.LVT >= 2 })
	assert.Len(t, matched, 2)
	assert.Equal(t, 1, b.len())
}

func TestEventBuffer_UnionInsertsAll(t *testing.T) {
	b := newEventBuffer()
	events := []Event{newEvent(3, nil, "c"), newEvent(1, nil, "a"), newEvent(2, nil, "b")}
	b.union(events)

	require.Equal(t, 3, b.len())
	sortedByOrder(t, b.items)
}
