// External (black-box) test fixtures, in package timewarp_test alongside
// the white-box *_test.go files in package timewarp, the way the reference
// actor runtime splits internal unit tests from its system_test.go.
package timewarp_test

import (
	"fmt"
	"sync"

	"github.com/mitchellwrosen/gen-tw/timewarp"
)

// appliedEvent is one observation recorded by recorderBehavior.
type appliedEvent struct {
	lvt     uint64
	payload any
}

// recorderLog is shared, mutex-guarded state a recorderBehavior writes to
// from its own dispatch-loop goroutine and a test reads from concurrently.
type recorderLog struct {
	mu      sync.Mutex
	applied []appliedEvent
}

func (r *recorderLog) record(lvt uint64, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, appliedEvent{lvt: lvt, payload: payload})
}

func (r *recorderLog) snapshot() []appliedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]appliedEvent, len(r.applied))
	copy(out, r.applied)
	return out
}

func (r *recorderLog) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied)
}

// recorderBehavior appends every applied payload to a shared log and never
// advances time on its own (TickTock is a no-op), so a test only ever
// observes events it explicitly delivered.
type recorderBehavior struct {
	log *recorderLog
}

func (b *recorderBehavior) Init(arg any) (any, error) {
	return arg, nil
}

func (b *recorderBehavior) HandleEvent(_, eventLVT uint64, payload, state any) (any, error) {
	b.log.record(eventLVT, payload)
	return state, nil
}

func (b *recorderBehavior) TickTock(currentLVT uint64, state any) (uint64, any) {
	return currentLVT, state
}

func (b *recorderBehavior) Terminate(any) error { return nil }

// failingBehavior returns an error from HandleEvent whenever payload equals
// failOn, so tests can drive HandlerFailure / FailurePolicy scenarios.
type failingBehavior struct {
	log    *recorderLog
	failOn any
}

func (b *failingBehavior) Init(arg any) (any, error) {
	return arg, nil
}

func (b *failingBehavior) HandleEvent(_, eventLVT uint64, payload, state any) (any, error) {
	if payload == b.failOn {
		return nil, fmt.Errorf("handler refused payload %v", payload)
	}
	b.log.record(eventLVT, payload)
	return state, nil
}

func (b *failingBehavior) TickTock(currentLVT uint64, state any) (uint64, any) {
	return currentLVT, state
}

func (b *failingBehavior) Terminate(any) error { return nil }

var _ timewarp.Behavior = (*recorderBehavior)(nil)
var _ timewarp.Behavior = (*failingBehavior)(nil)
