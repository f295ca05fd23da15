package timewarp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateHistory_AppendReplacesSameLVT(t *testing.T) {
	h := newStateHistory(0, "init")
	require.NoError(t, h.append(0, "init-updated"))

	assert.Len(t, h.entries, 1)
	assert.Equal(t, "init-updated", h.head().state)
}

func TestStateHistory_AppendPrependsGreaterLVT(t *testing.T) {
	h := newStateHistory(0, "init")
	require.NoError(t, h.append(5, "at-5"))
	require.NoError(t, h.append(10, "at-10"))

	require.Len(t, h.entries, 3)
	assert.Equal(t, uint64(10), h.head().lvt)
	assert.Equal(t, uint64(5), h.entries[1].lvt)
	assert.Equal(t, uint64(0), h.entries[2].lvt)
}

func TestStateHistory_AppendOlderLVTIsInvariantViolation(t *testing.T) {
	h := newStateHistory(10, "at-10")
	err := h.append(5, "at-5")
	require.Error(t, err)
	assert.IsType(t, &InvariantViolation{}, err)
}

func TestStateHistory_TruncateBelowDropsOlderEntries(t *testing.T) {
	h := newStateHistory(0, "s0")
	require.NoError(t, h.append(5, "s5"))
	require.NoError(t, h.append(10, "s10"))

	h.truncateBelow(5)

	require.Len(t, h.entries, 2)
	assert.Equal(t, uint64(10), h.entries[0].lvt)
	assert.Equal(t, uint64(5), h.entries[1].lvt)
}

func TestStateHistory_TruncateAboveKeepsAtLeastOneEntry(t *testing.T) {
	h := newStateHistory(0, "s0")
	require.NoError(t, h.append(5, "s5"))
	require.NoError(t, h.append(10, "s10"))

	h.truncateAbove(3)

	require.NotEmpty(t, h.entries)
	assert.Equal(t, uint64(0), h.head().lvt)
}

func TestStateHistory_TruncateAboveKeepsMatchingEntry(t *testing.T) {
	h := newStateHistory(0, "s0")
	require.NoError(t, h.append(5, "s5"))
	require.NoError(t, h.append(10, "s10"))

	h.truncateAbove(5)

	assert.Equal(t, uint64(5), h.head().lvt)
}
