package timewarp

import (
	"sort"

	"github.com/google/uuid"
)

// polarity tracks which signs of an id are currently queued. An anti-event
// and its matching positive event legitimately coexist in the buffer for a
// moment (that's precisely what lets rule 5 annihilate them); what must
// never happen is two positives, or two antis, of the same id at once.
type polarity uint8

const (
	positivePresent polarity = 1 << iota
	antiPresent
)

func bitFor(isEvent bool) polarity {
	if isEvent {
		return positivePresent
	}
	return antiPresent
}

// eventBuffer holds pending events sorted ascending by (lvt, isEvent, id).
// The reference actor runtime favors plain slices and maps over exotic tree
// structures for its mailbox and registry; the batch sizes a mailbox drain
// produces are small enough that a sorted slice with binary-search insertion
// is the idiomatic choice here too.
type eventBuffer struct {
	items []Event
	ids   map[uuid.UUID]polarity
}

func newEventBuffer() *eventBuffer {
	return &eventBuffer{ids: make(map[uuid.UUID]polarity)}
}

// insert adds e, preserving sort order. A duplicate of the same id AND the
// same polarity is dropped silently — the buffer already holds that exact
// event. A duplicate id of the opposite polarity (a positive event and its
// anti-event) is allowed: that's the pairing rule 5 annihilates.
func (b *eventBuffer) insert(e Event) {
	bit := bitFor(e.IsEvent)
	if b.ids[e.ID]&bit != 0 {
		return
	}
	i := sort.Search(len(b.items), func(i int) bool { return !less(b.items[i], e) })
	b.items = append(b.items, Event{})
	copy(b.items[i+1:], b.items[i:])
	b.items[i] = e
	b.ids[e.ID] |= bit
}

// union inserts every event from events into the buffer.
func (b *eventBuffer) union(events []Event) {
	for _, e := range events {
		b.insert(e)
	}
}

// len reports the number of pending events.
func (b *eventBuffer) len() int { return len(b.items) }

// peek returns the head event without removing it.
func (b *eventBuffer) peek() (Event, bool) {
	if len(b.items) == 0 {
		return Event{}, false
	}
	return b.items[0], true
}

// pop removes and returns the head event. Safe to call on a lone entry
// (no same-id twin present); rule 5 (annihilateID) is what removes a
// coexisting positive/anti pair, not pop.
func (b *eventBuffer) pop() (Event, bool) {
	if len(b.items) == 0 {
		return Event{}, false
	}
	e := b.items[0]
	b.items = b.items[1:]
	b.ids[e.ID] &^= bitFor(e.IsEvent)
	if b.ids[e.ID] == 0 {
		delete(b.ids, e.ID)
	}
	return e, true
}

// annihilateID removes every entry (of either polarity) carrying id — at
// most one of each polarity can exist at a time — and returns them.
func (b *eventBuffer) annihilateID(id uuid.UUID) []Event {
	if _, ok := b.ids[id]; !ok {
		return nil
	}
	var removed []Event
	kept := b.items[:0]
	for _, e := range b.items {
		if e.ID == id {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	b.items = kept
	delete(b.ids, id)
	return removed
}

// filter removes and returns every entry matching pred. Not currently
// called from pid.go's dispatch loop (rollback/annihilation go through
// union/annihilateID instead); kept to round out the buffer's operation
// set per the ordered-buffer design.
func (b *eventBuffer) filter(pred func(Event) bool) []Event {
	var matched []Event
	kept := b.items[:0]
	for _, e := range b.items {
		if pred(e) {
			matched = append(matched, e)
			b.ids[e.ID] &^= bitFor(e.IsEvent)
			if b.ids[e.ID] == 0 {
				delete(b.ids, e.ID)
			}
		} else {
			kept = append(kept, e)
		}
	}
	b.items = kept
	return matched
}
