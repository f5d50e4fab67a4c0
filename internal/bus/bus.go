// Package bus is the in-process typed publish/subscribe message bus that
// every other package uses to communicate instead of calling each other
// directly: the engine publishes order/position/account events, venue
// adapters publish market data and execution reports, and strategies (or
// the reconciliation driver) subscribe to whichever topics they care
// about: a register/unregister/broadcast hub generalized from websocket
// fan-out to topic-pattern pub/sub with correlated request/response.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Handler receives a published message. A panic inside a handler is
// recovered and logged by the bus; they never take down the publisher or
// other subscribers — one misbehaving subscriber must not affect delivery
// to others.
type Handler func(topic string, msg interface{})

// Subscription is returned by Subscribe; call Unsubscribe to stop
// receiving messages for this registration.
type Subscription struct {
	id      uint64
	pattern string
	bus     *Bus
}

func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s)
}

type subEntry struct {
	id      uint64
	pattern string
	segs    []string
	handler Handler
}

// Bus is a single process-wide message bus. Delivery is synchronous: a
// call to Publish invokes every matching handler in turn on the caller's
// goroutine, in subscription order, before returning — this matches the
// single-writer cache discipline where handlers mutate the cache and
// must be ordered.
type Bus struct {
	mu       sync.RWMutex
	subs     []*subEntry
	nextID   uint64
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]chan interface{}
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:  logger,
		pending: make(map[string]chan interface{}),
	}
}

// Subscribe registers handler for every topic matching pattern. Patterns
// are dot-separated; a segment of "*" matches exactly one segment, and a
// trailing "**" matches zero or more trailing segments, e.g.
// "orders.*.filled" or "data.**".
func (b *Bus) Subscribe(pattern string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	entry := &subEntry{
		id:      b.nextID,
		pattern: pattern,
		segs:    strings.Split(pattern, "."),
		handler: handler,
	}
	b.subs = append(b.subs, entry)
	return &Subscription{id: entry.id, pattern: pattern, bus: b}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.subs {
		if e.id == s.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers msg to every subscription whose pattern matches topic.
func (b *Bus) Publish(topic string, msg interface{}) {
	topicSegs := strings.Split(topic, ".")

	b.mu.RLock()
	matched := make([]*subEntry, 0, 4)
	for _, e := range b.subs {
		if matchTopic(e.segs, topicSegs) {
			matched = append(matched, e)
		}
	}
	b.mu.RUnlock()

	for _, e := range matched {
		b.deliver(e, topic, msg)
	}
}

func (b *Bus) deliver(e *subEntry, topic string, msg interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus subscriber panicked", "pattern", e.pattern, "topic", topic, "recovered", r)
		}
	}()
	e.handler(topic, msg)
}

// matchTopic compares pattern segments against topic segments: "*" matches
// any single segment, a trailing "**" matches the remainder (including
// zero segments), anything else must match literally.
func matchTopic(pattern, topic []string) bool {
	for i, p := range pattern {
		if p == "**" {
			return true // matches rest of topic regardless of length
		}
		if i >= len(topic) {
			return false
		}
		if p != "*" && p != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}

// Request publishes msg on topic wrapped in an Envelope carrying a fresh
// CorrelationID, and blocks until Reply is called with that CorrelationID
// or ctx is done. The reply is handed over directly, not published on a
// topic; callers on the receiving end must call Reply to unblock the
// requester — correlated request/response
// layered on top of the same pub/sub primitive.
func (b *Bus) Request(ctx context.Context, topic string, msg interface{}) (interface{}, error) {
	correlationID := uuid.NewString()
	replyCh := make(chan interface{}, 1)

	b.pendingMu.Lock()
	b.pending[correlationID] = replyCh
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, correlationID)
		b.pendingMu.Unlock()
	}()

	b.Publish(topic, &Envelope{CorrelationID: correlationID, Payload: msg})

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("bus request on %q: %w", topic, ctx.Err())
	}
}

// Reply delivers payload to whichever Request call is waiting on
// correlationID. A Reply with no matching waiter is a no-op: the
// requester may have already timed out.
func (b *Bus) Reply(correlationID string, payload interface{}) {
	b.pendingMu.Lock()
	ch, ok := b.pending[correlationID]
	b.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- payload:
	default:
	}
}

// Envelope wraps a request payload with its correlation id so handlers
// can reply without the bus exposing reply channels directly.
type Envelope struct {
	CorrelationID string
	Payload       interface{}
}
