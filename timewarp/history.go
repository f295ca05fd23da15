package timewarp

// historyEntry is one saved (lvt, user_state) snapshot.
type historyEntry struct {
	lvt   uint64
	state any
}

// stateHistory holds saved (lvt, state) snapshots in strictly descending lvt
// order. It is always non-empty once an actor has completed Init; the head
// is the current state snapshot at the actor's current LVT.
type stateHistory struct {
	entries []historyEntry
}

func newStateHistory(lvt uint64, state any) *stateHistory {
	return &stateHistory{entries: []historyEntry{{lvt: lvt, state: state}}}
}

// head returns the most recent snapshot.
func (h *stateHistory) head() historyEntry {
	return h.entries[0]
}

// append records a new snapshot. lvt must be >= the current head's lvt; an
// equal lvt replaces the head (same-tick state update), a greater lvt
// prepends a new entry. An older lvt is a programming error: the dispatch
// loop never calls append with one, so this always indicates a kernel bug.
func (h *stateHistory) append(lvt uint64, state any) error {
	if len(h.entries) == 0 {
		h.entries = []historyEntry{{lvt: lvt, state: state}}
		return nil
	}
	head := h.entries[0]
	switch {
	case lvt == head.lvt:
		h.entries[0] = historyEntry{lvt: lvt, state: state}
	case lvt > head.lvt:
		h.entries = append([]historyEntry{{lvt: lvt, state: state}}, h.entries...)
	default:
		return &InvariantViolation{Message: "append called with lvt older than history head"}
	}
	return nil
}

// truncateBelow drops every entry whose lvt is strictly less than t. Used by
// GVT fossil collection.
func (h *stateHistory) truncateBelow(t uint64) {
	i := len(h.entries)
	for i > 0 && h.entries[i-1].lvt < t {
		i--
	}
	h.entries = h.entries[:i]
}

// truncateAbove drops every entry whose lvt is strictly greater than t, so
// the resulting head has lvt <= t. Used by rollback. If every entry is
// greater than t, the oldest entry is kept regardless so history never goes
// empty; the resulting head then has an lvt greater than t.
func (h *stateHistory) truncateAbove(t uint64) {
	i := 0
	for i < len(h.entries) && h.entries[i].lvt > t {
		i++
	}
	if i == len(h.entries) {
		i = len(h.entries) - 1
	}
	h.entries = h.entries[i:]
}
