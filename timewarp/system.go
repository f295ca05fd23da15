package timewarp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
)

// System is the root of a TW-actor deployment: it owns a Transport, spawns
// actors, and links failure propagation between them.
type System struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    log.Logger
	transport Transport

	mu     sync.RWMutex
	actors map[string]*pid
}

// SystemOption configures a System at construction time.
type SystemOption func(*System)

// WithTransport overrides the default in-process Transport.
func WithTransport(t Transport) SystemOption {
	return func(s *System) { s.transport = t }
}

// NewSystem creates a System rooted at ctx. Canceling ctx stops every actor
// spawned from it.
func NewSystem(ctx context.Context, logger log.Logger, opts ...SystemOption) *System {
	ctx, cancel := context.WithCancel(ctx)
	s := &System{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		actors: make(map[string]*pid),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = NewLocalTransport(1000)
	}
	return s
}

type spawnConfig struct {
	supervisor    SupervisorStrategy
	failurePolicy FailurePolicy
	parent        *Ref
	rateLimit     *RateLimiter
}

// SpawnOption configures an individual actor's spawn.
type SpawnOption func(*spawnConfig)

// WithSupervisor sets a custom supervisor strategy for a linked actor.
func WithSupervisor(s SupervisorStrategy) SpawnOption {
	return func(c *spawnConfig) { c.supervisor = s }
}

// WithFailurePolicy selects how the actor reacts to a HandleEvent error.
func WithFailurePolicy(p FailurePolicy) SpawnOption {
	return func(c *spawnConfig) { c.failurePolicy = p }
}

// WithRateLimit bounds how many events per second the actor will accept
// from its mailbox before dropping the excess (counted in
// Metrics.DroppedMessages). Unset by default: no limit.
func WithRateLimit(maxPerSecond float64) SpawnOption {
	return func(c *spawnConfig) { c.rateLimit = NewRateLimiter(maxPerSecond, maxPerSecond) }
}

// Spawn starts a detached TW-actor and blocks until Init has completed (or
// failed), matching the reference runtime's spawn rendezvous.
func (s *System) Spawn(name string, behavior Behavior, arg any, opts ...SpawnOption) (Ref, error) {
	return s.spawn(name, behavior, arg, nil, opts)
}

// SpawnLinked starts an actor linked to parent: if the child exits with a
// non-nil reason, the supervisor strategy given to this spawn (WithSupervisor,
// DefaultSupervisor otherwise) is consulted via Decision and, on Restart, the
// child is automatically respawned from the same arg.
func (s *System) SpawnLinked(parent Ref, name string, behavior Behavior, arg any, opts ...SpawnOption) (Ref, error) {
	return s.spawn(name, behavior, arg, &parent, opts)
}

func (s *System) spawn(name string, behavior Behavior, arg any, parent *Ref, opts []SpawnOption) (Ref, error) {
	s.mu.Lock()
	if _, exists := s.actors[name]; exists {
		s.mu.Unlock()
		return Ref{}, fmt.Errorf("timewarp: actor %s already exists", name)
	}
	s.mu.Unlock()

	cfg := spawnConfig{supervisor: DefaultSupervisor(), failurePolicy: FailFast, parent: parent}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := newPID(name, s, behavior, s.transport, cfg)
	ref := Ref{p: p}

	if err := s.transport.Subscribe(ref); err != nil {
		return Ref{}, fmt.Errorf("timewarp: subscribing actor %s: %w", name, err)
	}
	p.inbox = s.transport.Inbox(ref)

	s.mu.Lock()
	s.actors[name] = p
	s.mu.Unlock()

	go p.run(arg)

	if err := <-p.startErr; err != nil {
		s.mu.Lock()
		delete(s.actors, name)
		s.mu.Unlock()
		s.transport.Unsubscribe(ref)
		return Ref{}, err
	}

	if parent != nil {
		go s.supervise(ref, *parent, cfg)
	}

	return ref, nil
}

// supervise watches a linked child and consults the supervisor strategy from
// its spawn configuration when it exits with a non-nil reason.
func (s *System) supervise(child, parent Ref, cfg spawnConfig) {
	<-child.p.done
	if child.p.exitErr == nil {
		return
	}
	decision := cfg.supervisor.HandleFailure(child, child.p.exitErr)
	switch decision {
	case Restart:
		s.restart(child, cfg)
	case Escalate:
		if !parent.IsZero() {
			s.Stop(parent, fmt.Errorf("escalated failure from %s: %w", child.Name(), child.p.exitErr))
		}
	case StopDecision, Resume:
		// No further action: the child stays stopped.
	}
}

func (s *System) restart(child Ref, cfg spawnConfig) {
	old := child.p
	old.restarts.Add(1)
	s.logger.Info("restarting actor", "actor", old.name, "restarts", old.restarts.Load())

	s.mu.Lock()
	delete(s.actors, old.name)
	s.mu.Unlock()
	s.transport.Unsubscribe(child)

	opts := []SpawnOption{
		WithSupervisor(cfg.supervisor),
		WithFailurePolicy(cfg.failurePolicy),
	}
	if cfg.rateLimit != nil {
		opts = append(opts, func(c *spawnConfig) { c.rateLimit = cfg.rateLimit })
	}
	ref, err := s.spawn(old.name, old.behavior, old.arg, cfg.parent, opts)
	if err != nil {
		s.logger.Error("actor restart failed", "actor", old.name, "error", err)
		return
	}
	ref.p.restarts.Store(old.restarts.Load())
	ref.p.metrics.Restarts.Store(int32(old.restarts.Load()))
}

// Metrics returns ref's dispatch-loop counters.
func (s *System) Metrics(ref Ref) *Metrics {
	if ref.p == nil {
		return nil
	}
	return ref.p.metrics
}

// Get returns a previously spawned actor's Ref by name.
func (s *System) Get(name string) (Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.actors[name]
	if !ok {
		return Ref{}, false
	}
	return Ref{p: p}, true
}

// Stop requests ref terminate with reason. It is honored at the dispatch
// loop's next poll, not synchronously.
func (s *System) Stop(ref Ref, reason error) {
	if ref.p == nil {
		return
	}
	ref.p.stopReason.Store(reason)
	ref.p.stopRequested.Store(true)
}

// GVT enqueues a GVTUpdate carrying t for ref to fossil-collect against.
func (s *System) GVT(ref Ref, t uint64) error {
	return s.Notify(ref, newEvent(t, nil, GVTUpdate{Value: t}))
}

// Event builds a non-causal positive event with an auto-generated id.
func (s *System) Event(lvt uint64, payload any) Event {
	return newEvent(lvt, nil, payload)
}

// LinkedEvent builds a causally-linked positive event: if the receiving
// actor ever rolls back past lvt, origin receives the event's anti-event.
func (s *System) LinkedEvent(origin Ref, lvt uint64, payload any) Event {
	o := origin
	return newEvent(lvt, &o, payload)
}

// AntiEvent returns the anti-event twin of e.
func (s *System) AntiEvent(e Event) Event {
	return antiEventOf(e)
}

// Notify delivers one or more events to ref in one Transport.Notify call.
// Both shipped transports send each event as its own message (a channel
// send, or one NATS publish per event), so the receiver may drain them in
// separate batches.
func (s *System) Notify(ref Ref, events ...Event) error {
	return s.transport.Notify(s.ctx, ref, events...)
}

// Shutdown stops every actor in the system, waiting up to timeout.
func (s *System) Shutdown(timeout time.Duration) error {
	s.mu.RLock()
	refs := make([]Ref, 0, len(s.actors))
	for _, p := range s.actors {
		refs = append(refs, Ref{p: p})
	}
	s.mu.RUnlock()

	for _, ref := range refs {
		s.Stop(ref, fmt.Errorf("system shutdown"))
	}

	done := make(chan struct{})
	go func() {
		for _, ref := range refs {
			<-ref.p.done
			s.transport.Unsubscribe(ref)
		}
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("timewarp: shutdown timed out after %v", timeout)
	}
}
