package timewarp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPastLog_PushMaintainsDescendingOrder(t *testing.T) {
	p := &pastLog{}
	p.push(newEvent(1, nil, "a"))
	p.push(newEvent(2, nil, "b"))
	p.push(newEvent(3, nil, "c"))

	require.Len(t, p.entries, 3)
	assert.Equal(t, uint64(3), p.entries[0].LVT)
	assert.Equal(t, uint64(2), p.entries[1].LVT)
	assert.Equal(t, uint64(1), p.entries[2].LVT)
}

func TestPastLog_TruncateBelowDropsOlder(t *testing.T) {
	p := &pastLog{}
	p.push(newEvent(1, nil, "a"))
	p.push(newEvent(2, nil, "b"))
	p.push(newEvent(3, nil, "c"))

	p.truncateBelow(2)

	require.Len(t, p.entries, 2)
	assert.Equal(t, uint64(3), p.entries[0].LVT)
	assert.Equal(t, uint64(2), p.entries[1].LVT)
}

func TestRollback_SplitsReplayAscendingAndKeepsRemainderDescending(t *testing.T) {
	past := []Event{
		newEvent(5, nil, "e5"),
		newEvent(4, nil, "e4"),
		newEvent(3, nil, "e3"),
		newEvent(2, nil, "e2"),
		newEvent(1, nil, "e1"),
	}

	replay, newPast := rollback(3, past)

	require.Len(t, replay, 3)
	assert.Equal(t, uint64(3), replay[0].LVT)
	assert.Equal(t, uint64(4), replay[1].LVT)
	assert.Equal(t, uint64(5), replay[2].LVT)

	require.Len(t, newPast, 2)
	assert.Equal(t, uint64(2), newPast[0].LVT)
	assert.Equal(t, uint64(1), newPast[1].LVT)
}

func TestRollback_UnionOfReplayAndRemainderEqualsOriginal(t *testing.T) {
	past := []Event{
		newEvent(5, nil, "e5"),
		newEvent(4, nil, "e4"),
		newEvent(3, nil, "e3"),
	}

	replay, newPast := rollback(4, past)

	total := len(replay) + len(newPast)
	assert.Equal(t, len(past), total)
}

func TestRollback_TargetAboveAllPastIsNoop(t *testing.T) {
	past := []Event{newEvent(1, nil, "e1")}

	replay, newPast := rollback(5, past)

	assert.Empty(t, replay)
	assert.Equal(t, past, newPast)
}
