package timewarp

import (
	"github.com/google/uuid"
)

// Ref identifies a spawned actor. It is opaque and equality-comparable;
// callers never reach into its internals.
type Ref struct {
	p *pid
}

// Name returns the actor's registered name, mostly useful for logging.
func (r Ref) Name() string {
	if r.p == nil {
		return ""
	}
	return r.p.name
}

// IsZero reports whether r is the zero Ref (no actor).
func (r Ref) IsZero() bool { return r.p == nil }

func (r Ref) String() string { return r.Name() }

// Event is an immutable record of something that happens to an actor at a
// given virtual time. Anti-events are events with IsEvent set to false that
// carry the same ID, LVT and Payload as the positive event they cancel.
type Event struct {
	LVT     uint64
	ID      uuid.UUID
	IsEvent bool
	Link    *Ref
	Payload any
}

// Stop is the reserved payload that requests an actor terminate. It is never
// placed in the ordered event buffer (see System.Stop) and never stored in the
// past-event log.
type Stop struct {
	Reason error
}

// GVTUpdate is the reserved payload carrying a new Global Virtual Time
// observation, used to trigger fossil collection. It is never stored in the
// past-event log.
type GVTUpdate struct {
	Value uint64
}

// newEvent builds a fresh positive event with an auto-generated id.
func newEvent(lvt uint64, link *Ref, payload any) Event {
	return Event{
		LVT:     lvt,
		ID:      uuid.New(),
		IsEvent: true,
		Link:    link,
		Payload: payload,
	}
}

// antiEventOf returns the anti-event twin of e: same id, same lvt, same
// payload, link cleared, IsEvent false. Calling it on an anti-event is
// idempotent: the result is identical to e.
func antiEventOf(e Event) Event {
	return Event{
		LVT:     e.LVT,
		ID:      e.ID,
		IsEvent: false,
		Link:    nil,
		Payload: e.Payload,
	}
}

// less implements the ordered event buffer's total order:
// (lvt ascending, anti-before-positive, id ascending). Every anti-event sorts
// before every positive event of the same lvt, so a batch containing an
// anti-event and its positive twin annihilates before either is applied.
func less(a, b Event) bool {
	if a.LVT != b.LVT {
		return a.LVT < b.LVT
	}
	if a.IsEvent != b.IsEvent {
		return !a.IsEvent // anti-events (IsEvent == false) sort first
	}
	return a.ID.String() < b.ID.String()
}
