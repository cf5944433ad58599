// Package bus provides the engine-owned publish/subscribe dispatcher used for
// all cross-component notification: property changes, data-arrival events,
// lifecycle transitions, and block faults.
//
// A Bus is an explicitly constructed object whose lifecycle is tied to the
// engine instance that owns it; there is no process-wide singleton. Delivery
// is synchronous and in subscription order, and a panicking handler never
// prevents delivery to the handlers subscribed after it.
package bus

import (
	"log/slog"
	"sync"

	"github.com/Steve19802/workbench/errors"
)

// Handler receives every event published on the topic it is subscribed to.
type Handler func(event any)

// Subscription identifies a single registered handler so it can be removed.
type Subscription struct {
	topic string
	id    uint64
}

// Topic returns the topic this subscription is attached to.
func (s Subscription) Topic() string {
	return s.topic
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is a thread-safe, synchronous publish/subscribe dispatcher.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscriber
	logger *slog.Logger
}

// New creates an empty Bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics: make(map[string][]subscriber),
		logger: logger,
	}
}

// Subscribe registers a handler for a topic and returns a Subscription that
// can later be passed to Unsubscribe. Handlers on the same topic are invoked
// in subscription order.
func (b *Bus) Subscribe(topic string, handler Handler) (Subscription, error) {
	if topic == "" {
		return Subscription{}, errors.WrapInvalid(
			errors.ErrNotFound, "Bus", "Subscribe", "topic validation")
	}
	if handler == nil {
		return Subscription{}, errors.WrapInvalid(
			errors.ErrNotFound, "Bus", "Subscribe", "handler validation")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.topics[topic] = append(b.topics[topic], subscriber{id: b.nextID, handler: handler})

	return Subscription{topic: topic, id: b.nextID}, nil
}

// Unsubscribe removes a previously registered handler. Removing a handler
// that is already gone is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.topics[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[sub.topic]) == 0 {
		delete(b.topics, sub.topic)
	}
}

// Publish delivers an event to every handler subscribed to the topic,
// synchronously and in subscription order. A handler panic is recovered,
// logged, and does not stop delivery to the remaining handlers.
func (b *Bus) Publish(topic string, event any) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(topic, s, event)
	}
}

// SubscriberCount returns the number of handlers currently subscribed to a
// topic. Used by tests and diagnostics.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Bus) deliver(topic string, s subscriber, event any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"topic", topic,
				"subscription", s.id,
				"panic", r)
		}
	}()
	s.handler(event)
}
