package timewarp

import (
	"fmt"
	"sync/atomic"
	"time"

	"cosmossdk.io/log"
)

// idleBackoff bounds how long the dispatch loop sleeps when TickTock made no
// progress (returned the current lvt unchanged) and the mailbox is empty.
// Rule 1 of the dispatch loop always drains with a zero timeout, which would
// otherwise busy-spin at 100% CPU for an actor with nothing to do; this is
// the pragmatic stand-in for the "exactly one suspension point" the
// concurrency model describes.
const idleBackoff = time.Millisecond

// pid is the internal per-actor runtime state. Hosts only ever see a Ref;
// pid itself is never exported, mirroring how the reference actor runtime
// keeps PID internals private behind accessor methods.
type pid struct {
	name          string
	system        *System
	behavior      Behavior
	transport     Transport
	inbox         <-chan Event
	logger        log.Logger
	supervisor    SupervisorStrategy
	metrics       *Metrics
	failurePolicy FailurePolicy
	rateLimit     *RateLimiter
	arg           any
	parent        *Ref

	running       atomic.Bool
	restarts      atomic.Int32
	stopRequested atomic.Bool
	stopReason    atomic.Value // error

	startErr chan error
	done     chan struct{}
	exitErr  error

	// Dispatch-loop-owned state. Touched only by the run() goroutine.
	buffer     *eventBuffer
	past       *pastLog
	history    *stateHistory
	lvt        uint64
	gvt        uint64
	pendingGVT *uint64
}

func newPID(name string, system *System, behavior Behavior, transport Transport, opts spawnConfig) *pid {
	return &pid{
		name:          name,
		system:        system,
		behavior:      behavior,
		transport:     transport,
		logger:        system.logger.With("actor", name),
		supervisor:    opts.supervisor,
		metrics:       newMetrics(name),
		failurePolicy: opts.failurePolicy,
		rateLimit:     opts.rateLimit,
		parent:        opts.parent,
		startErr:      make(chan error, 1),
		done:          make(chan struct{}),
		buffer:        newEventBuffer(),
		past:          &pastLog{},
	}
}

// run is the actor's main goroutine: Init, then the dispatch loop described
// by the dispatch priority rules, until Stop or a fatal failure.
func (p *pid) run(arg any) {
	p.arg = arg
	defer close(p.done)

	state, err := p.callInit(arg)
	if err != nil {
		p.startErr <- &InitFailure{Actor: p.name, Err: err}
		return
	}

	p.history = newStateHistory(0, state)
	p.lvt = 0
	p.running.Store(true)
	p.startErr <- nil

	p.loop()
}

func (p *pid) loop() {
	for {
		if !p.running.Load() {
			return
		}

		if p.stopRequested.Load() {
			p.doStop()
			return
		}

		if p.pendingGVT != nil && p.lvt >= *p.pendingGVT {
			p.fossilCollect(*p.pendingGVT)
			p.pendingGVT = nil
			continue
		}

		head, ok := p.buffer.peek()
		if !ok {
			if p.idleAdvance() {
				continue
			}
			return
		}

		switch head.Payload.(type) {
		case GVTUpdate:
			p.buffer.pop()
			p.handleGVTUpdate(head.LVT)
			continue
		}

		switch {
		case head.LVT < p.lvt:
			p.rollbackTo(head.LVT)
		case !head.IsEvent:
			p.annihilate(head)
		default:
			p.applyHead(head)
		}
	}
}

// idleAdvance implements rule 1: drain with a zero timeout, and if still
// idle, invoke TickTock. Returns false if a fatal error aborted the actor
// (the loop should exit rather than continue); a stop request returns true
// so the top of loop() handles it.
func (p *pid) idleAdvance() bool {
	drained := p.drainMailbox(0)
	if len(drained) > 0 {
		p.buffer.union(drained)
		return true
	}
	if p.stopRequested.Load() {
		return true // let the top of loop() observe it and stop
	}

	nextLVT, nextState := p.callTickTock(p.lvt, p.history.head().state)
	p.metrics.TickTocks.Add(1)
	if nextLVT < p.lvt {
		p.fatal(&InvariantViolation{Actor: p.name, Message: "tick_tock returned a lvt older than current"})
		return false
	}
	if err := p.history.append(nextLVT, nextState); err != nil {
		p.fatal(err)
		return false
	}
	if nextLVT == p.lvt {
		time.Sleep(idleBackoff)
	}
	p.lvt = nextLVT
	return true
}

// handleGVTUpdate implements rule 3, plus the ADDED resolution that holds a
// premature GVTUpdate (one whose lvt the actor hasn't reached yet) outside
// the ordered buffer instead of deadlocking idle-advance, and silently
// drops any GVTUpdate lower than one already observed.
func (p *pid) handleGVTUpdate(value uint64) {
	if value < p.gvt || (p.pendingGVT != nil && value < *p.pendingGVT) {
		return
	}
	if p.lvt >= value {
		p.fossilCollect(value)
		return
	}
	p.pendingGVT = &value
}

func (p *pid) fossilCollect(g uint64) {
	p.history.truncateBelow(g)
	p.past.truncateBelow(g)
	p.gvt = g
	p.metrics.FossilCollections.Add(1)
	p.logger.Debug("fossil collection", "gvt", g)
	requestGCHint()
}

// rollbackTo implements rule 4: a straggler at the buffer head forces the
// actor back to the straggler's lvt.
func (p *pid) rollbackTo(target uint64) {
	replay, newPast := rollback(target, p.past.entries)
	p.past.entries = newPast
	p.history.truncateAbove(target)
	p.lvt = target
	p.metrics.Rollbacks.Add(1)
	p.logger.Info("rollback", "target", target, "replayed", len(replay))

	var reinject []Event
	for _, e := range replay {
		if e.Link == nil {
			reinject = append(reinject, e)
		} else {
			p.sendAntiEvent(*e.Link, e)
		}
	}
	p.buffer.union(reinject)
}

func (p *pid) sendAntiEvent(dest Ref, e Event) {
	anti := antiEventOf(e)
	if err := p.transport.Notify(p.system.ctx, dest, anti); err != nil {
		p.logger.Error("failed to deliver anti-event", "dest", dest.Name(), "error", err)
	}
	p.metrics.AntiEventsSent.Add(1)
}

// annihilate implements rule 5: an anti-event at the head cancels its
// positive twin and itself, wherever in the buffer the twin sits.
func (p *pid) annihilate(anti Event) {
	p.buffer.annihilateID(anti.ID)
	p.metrics.Annihilations.Add(1)
}

// applyHead implements rule 6: the head is ready to be applied against the
// actor's current state.
func (p *pid) applyHead(e Event) {
	state := p.history.head().state
	newState, err := p.callHandleEvent(p.lvt, e.LVT, e.Payload, state)
	if err != nil {
		p.onHandlerFailure(e, err)
		return
	}

	p.buffer.pop()
	if herr := p.history.append(e.LVT, newState); herr != nil {
		p.fatal(herr)
		return
	}
	p.past.push(e)
	p.lvt = e.LVT
	p.metrics.EventsApplied.Add(1)
}

func (p *pid) onHandlerFailure(e Event, err error) {
	failure := &HandlerFailure{Actor: p.name, LVT: e.LVT, Err: err}
	if p.failurePolicy == RollbackOnFailure {
		// e itself hasn't been pushed to p.past yet (applyHead only does
		// that on success), so every entry already in p.past satisfies
		// lvt <= p.lvt <= e.LVT. Targeting rollback at e.LVT would select
		// nothing unless some past entry happens to share that exact lvt.
		// The owed set is everything applied since the last GVT fossil
		// collection, i.e. everything still in p.past, so the target is
		// p.gvt, the log's lower bound.
		replay, newPast := rollback(p.gvt, p.past.entries)
		p.past.entries = newPast
		for _, owed := range replay {
			if owed.Link != nil {
				p.sendAntiEvent(*owed.Link, owed)
			}
		}
	}
	p.fatal(failure)
}

// fatal records the exit reason and stops the dispatch loop. It does not
// call Terminate: a fatal error means user state may be inconsistent.
func (p *pid) fatal(err error) {
	p.exitErr = err
	p.running.Store(false)
	p.logger.Error("actor aborting", "error", err)
}

// doStop implements rule 2: invoke Terminate and exit with the requested
// reason.
func (p *pid) doStop() {
	reason, _ := p.stopReason.Load().(error)
	state := p.history.head().state
	if err := p.callTerminate(state); err != nil {
		p.logger.Error("terminate returned an error", "error", err)
	}
	p.exitErr = reason
	p.running.Store(false)
	p.logger.Info("actor stopped", "reason", reason)
}

// drainMailbox collects every event available within initialTimeout, then
// keeps coalescing with a zero timeout as long as messages keep arriving.
func (p *pid) drainMailbox(initialTimeout time.Duration) []Event {
	var batch []Event

	first, ok := p.receive(initialTimeout)
	if !ok {
		return batch
	}
	if p.admit(first) {
		batch = append(batch, first)
	}

	for {
		next, ok := p.receive(0)
		if !ok {
			return batch
		}
		if p.admit(next) {
			batch = append(batch, next)
		}
	}
}

// admit applies the optional per-actor rate limit to an inbound event.
// Anti-events and GVT updates are never throttled: dropping them would
// leave a positive twin permanently unannihilated or stall fossil
// collection, both worse outcomes than a little extra buffer growth.
func (p *pid) admit(e Event) bool {
	if p.rateLimit == nil || !e.IsEvent {
		return true
	}
	if _, isGVT := e.Payload.(GVTUpdate); isGVT {
		return true
	}
	if p.rateLimit.AllowOne() {
		return true
	}
	p.metrics.DroppedMessages.Add(1)
	p.logger.Warn("dropping event: rate limit exceeded", "lvt", e.LVT)
	return false
}

func (p *pid) receive(timeout time.Duration) (Event, bool) {
	if timeout == 0 {
		select {
		case e := <-p.inbox:
			return e, true
		default:
			return Event{}, false
		}
	}
	select {
	case e := <-p.inbox:
		return e, true
	case <-time.After(timeout):
		return Event{}, false
	}
}

// --- callback shim: the only place user code runs ---

func (p *pid) callInit(arg any) (state any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.behavior.Init(arg)
}

func (p *pid) callHandleEvent(currentLVT, eventLVT uint64, payload, state any) (newState any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.Panics.Add(1)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.behavior.HandleEvent(currentLVT, eventLVT, payload, state)
}

func (p *pid) callTickTock(currentLVT uint64, state any) (nextLVT uint64, nextState any) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.Panics.Add(1)
			p.logger.Error("tick_tock panicked", "panic", r)
			nextLVT, nextState = currentLVT, state
		}
	}()
	return p.behavior.TickTock(currentLVT, state)
}

func (p *pid) callTerminate(state any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.behavior.Terminate(state)
}

// Name returns the actor's registered name.
func (p *pid) Name() string { return p.name }

// IsRunning reports whether the dispatch loop is still active. Not
// currently called from System (Ref exposes no running-state accessor);
// kept as the natural counterpart to Name for completeness.
func (p *pid) IsRunning() bool { return p.running.Load() }
