package timewarp

// Behavior is the user-supplied application logic a TW-actor runs. All four
// callbacks are invoked exclusively from the actor's own dispatch loop
// goroutine and are wrapped by the kernel's callback shim so a panic
// surfaces as an InitFailure/HandlerFailure instead of crashing the actor.
type Behavior interface {
	// Init builds the initial user state at lvt=0 from a host-supplied
	// argument. An error aborts the spawn before the dispatch loop starts.
	Init(arg any) (state any, err error)

	// HandleEvent applies payload, observed at eventLVT while the actor's
	// clock reads currentLVT, to state and returns the resulting state. An
	// error aborts the actor per the configured FailurePolicy.
	HandleEvent(currentLVT, eventLVT uint64, payload any, state any) (newState any, err error)

	// TickTock is invoked when the actor is idle (no pending events) and
	// returns the next virtual time to advance to, which must be >=
	// currentLVT, along with the state at that time.
	TickTock(currentLVT uint64, state any) (nextLVT uint64, nextState any)

	// Terminate is called with the final state when the actor is stopping.
	// Any error is logged, never propagated.
	Terminate(state any) error
}

// FailurePolicy selects how the dispatch loop reacts to a HandlerFailure.
type FailurePolicy int

const (
	// FailFast aborts the actor immediately on a handler error, without
	// sending anti-events for causal work already performed. This is the
	// baseline behavior the source specification documents.
	FailFast FailurePolicy = iota

	// RollbackOnFailure rolls back to the last observed GVT, emitting
	// anti-events for every causally-linked event applied since, before
	// aborting the actor with the same HandlerFailure.
	RollbackOnFailure
)
