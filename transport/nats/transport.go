// Package nats provides a Transport implementation for actors distributed
// across processes, built on github.com/nats-io/nats.go the same way the
// pack's message-bus layer publishes and subscribes JSON-encoded payloads
// per topic.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/mitchellwrosen/gen-tw/timewarp"
)

const subjectPrefix = "tw.events."

// wireEvent is the JSON encoding of a timewarp.Event put on the wire. Link
// is carried as the origin actor's name rather than a Ref, since a Ref is
// only meaningful within the process that spawned it.
//
// Kind discriminates the two reserved payload types (GVTUpdate, Stop) from
// an ordinary user payload. Without it, decoding a JSON object through
// encoding/json into an any always produces a map[string]interface{},
// never the original Go type — which would make a GVTUpdate silently
// unrecognizable by pid.loop's type switch once it crosses this transport.
// An ordinary payload leaves Kind empty and round-trips through codec.
type wireEvent struct {
	LVT     uint64          `json:"lvt"`
	ID      uuid.UUID       `json:"id"`
	IsEvent bool            `json:"is_event"`
	Link    string          `json:"link,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

const (
	kindGVTUpdate = "gvt_update"
	kindStop      = "stop"
)

// Codec encodes/decodes event payloads. The default codec round-trips
// through encoding/json.
type Codec interface {
	Marshal(payload any) ([]byte, error)
	Unmarshal(data []byte, into *any) error
}

type jsonCodec struct{}

func (jsonCodec) Marshal(payload any) ([]byte, error) { return json.Marshal(payload) }
func (jsonCodec) Unmarshal(data []byte, into *any) error {
	return json.Unmarshal(data, into)
}

// Transport is a NATS-backed timewarp.Transport. Each actor's mailbox is a
// subscription on its own subject (tw.events.<name>); Notify publishes a
// JSON-encoded message per event to the destination's subject.
type Transport struct {
	conn    *nats.Conn
	codec   Codec
	lookup  func(name string) (timewarp.Ref, bool)
	logger  log.Logger
	breaker *circuitBreaker

	mu   sync.Mutex
	subs map[string]*nats.Subscription
	chs  map[string]chan timewarp.Event
}

// New connects to the NATS server at url and returns a Transport. lookup
// resolves a peer actor's registered name back to its Ref so a decoded
// Event's Link field (carried on the wire as a name) can be reattached to a
// live Ref on this process; peers this process hasn't heard of simply get a
// nil Link.
func New(url string, logger log.Logger, lookup func(name string) (timewarp.Ref, bool), opts ...nats.Option) (*Transport, error) {
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport/nats: connecting to %s: %w", url, err)
	}
	return &Transport{
		conn:    conn,
		codec:   jsonCodec{},
		lookup:  lookup,
		logger:  logger,
		breaker: newCircuitBreaker(5, 10*time.Second),
		subs:    make(map[string]*nats.Subscription),
		chs:     make(map[string]chan timewarp.Event),
	}, nil
}

// WithCodec overrides the payload codec (default: JSON).
func (t *Transport) WithCodec(c Codec) *Transport {
	t.codec = c
	return t
}

// WithCircuitBreaker overrides the publish circuit breaker's trip threshold
// and open-state timeout (default: 5 consecutive failures, 10s).
func (t *Transport) WithCircuitBreaker(maxFailures int, timeout time.Duration) *Transport {
	t.breaker = newCircuitBreaker(maxFailures, timeout)
	return t
}

func subjectFor(name string) string { return subjectPrefix + name }

// Subscribe implements timewarp.Transport, mirroring the pack's
// NATSSubscriber.Subscribe adapted to decode into typed timewarp.Event
// values instead of raw bytes.
func (t *Transport) Subscribe(ref timewarp.Ref) error {
	name := ref.Name()
	ch := make(chan timewarp.Event, 256)

	sub, err := t.conn.Subscribe(subjectFor(name), func(msg *nats.Msg) {
		e, err := t.decode(msg.Data)
		if err != nil {
			// Non-event payload on the wire: discarded, per the mailbox
			// drain contract — it must never reach the dispatch loop.
			if t.logger != nil {
				t.logger.Warn("discarding unexpected message", "actor", name,
					"error", (&timewarp.UnexpectedMessage{Actor: name, Value: msg.Data}).Error())
			}
			return
		}
		select {
		case ch <- e:
		default:
			// Mailbox full: drop rather than block the NATS dispatcher
			// goroutine, matching the reference runtime's "mailbox full"
			// back-pressure policy.
		}
	})
	if err != nil {
		close(ch)
		return fmt.Errorf("transport/nats: subscribing %s: %w", name, err)
	}
	// Flush ensures the subscription is registered on the server before
	// Subscribe returns, so events published by other connections are
	// routed from this point on.
	if err := t.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return fmt.Errorf("transport/nats: flushing subscription: %w", err)
	}

	t.mu.Lock()
	t.subs[name] = sub
	t.chs[name] = ch
	t.mu.Unlock()

	return nil
}

// Unsubscribe implements timewarp.Transport.
func (t *Transport) Unsubscribe(ref timewarp.Ref) {
	name := ref.Name()
	t.mu.Lock()
	sub := t.subs[name]
	ch := t.chs[name]
	delete(t.subs, name)
	delete(t.chs, name)
	t.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
	if ch != nil {
		close(ch)
	}
}

// Inbox implements timewarp.Transport.
func (t *Transport) Inbox(ref timewarp.Ref) <-chan timewarp.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chs[ref.Name()]
}

// Notify implements timewarp.Transport: each event is JSON-encoded and
// published to dest's subject.
func (t *Transport) Notify(_ context.Context, dest timewarp.Ref, events ...timewarp.Event) error {
	for _, e := range events {
		data, err := t.encode(e)
		if err != nil {
			return fmt.Errorf("transport/nats: encoding event: %w", err)
		}
		subject := subjectFor(dest.Name())
		if err := t.breaker.call(func() error { return t.conn.Publish(subject, data) }); err != nil {
			return fmt.Errorf("transport/nats: publishing to %s: %w", dest.Name(), err)
		}
	}
	return nil
}

func (t *Transport) encode(e timewarp.Event) ([]byte, error) {
	w := wireEvent{LVT: e.LVT, ID: e.ID, IsEvent: e.IsEvent}
	if e.Link != nil {
		w.Link = e.Link.Name()
	}

	switch payload := e.Payload.(type) {
	case timewarp.GVTUpdate:
		w.Kind = kindGVTUpdate
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		w.Payload = data
	case timewarp.Stop:
		w.Kind = kindStop
		var reason string
		if payload.Reason != nil {
			reason = payload.Reason.Error()
		}
		data, err := json.Marshal(stopWire{Reason: reason})
		if err != nil {
			return nil, err
		}
		w.Payload = data
	default:
		data, err := t.codec.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		w.Payload = data
	}

	return json.Marshal(w)
}

// stopWire carries a Stop payload's reason as a string, since the error
// interface isn't itself JSON-serializable.
type stopWire struct {
	Reason string `json:"reason,omitempty"`
}

func (t *Transport) decode(data []byte) (timewarp.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return timewarp.Event{}, err
	}

	var payload any
	switch w.Kind {
	case kindGVTUpdate:
		var v timewarp.GVTUpdate
		if err := json.Unmarshal(w.Payload, &v); err != nil {
			return timewarp.Event{}, err
		}
		payload = v
	case kindStop:
		var v stopWire
		if err := json.Unmarshal(w.Payload, &v); err != nil {
			return timewarp.Event{}, err
		}
		stop := timewarp.Stop{}
		if v.Reason != "" {
			stop.Reason = errors.New(v.Reason)
		}
		payload = stop
	default:
		var v any
		if err := t.codec.Unmarshal(w.Payload, &v); err != nil {
			return timewarp.Event{}, err
		}
		payload = v
	}

	e := timewarp.Event{LVT: w.LVT, ID: w.ID, IsEvent: w.IsEvent, Payload: payload}
	if w.Link != "" && t.lookup != nil {
		if ref, ok := t.lookup(w.Link); ok {
			e.Link = &ref
		}
	}
	return e, nil
}

// Close tears down every subscription and closes the underlying connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	names := make([]string, 0, len(t.subs))
	for name := range t.subs {
		names = append(names, name)
	}
	t.mu.Unlock()

	for _, name := range names {
		t.unsubscribeByName(name)
	}
	t.conn.Close()
	return nil
}

func (t *Transport) unsubscribeByName(name string) {
	t.mu.Lock()
	sub := t.subs[name]
	ch := t.chs[name]
	delete(t.subs, name)
	delete(t.chs, name)
	t.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
	if ch != nil {
		close(ch)
	}
}
