package block

import (
	"log/slog"

	"github.com/Steve19802/workbench/bus"
)

// Wildcard subscribes a listener to every property of a block.
const Wildcard = "*"

// Change describes a single accepted property mutation.
type Change struct {
	Block    string
	Property string
	Old      any
	New      any
}

// Listener receives property change notifications.
type Listener func(Change)

// Notifier is the per-block property notification layer. Listeners are
// invoked synchronously on every accepted property set: first the listeners
// subscribed to the changed property, then the wildcard listeners, each
// group in its own subscription order. A wildcard listener therefore fires
// after the property-specific ones even when it subscribed earlier. A
// failing listener never prevents delivery to the listeners after it, and
// never fails the originating SetProperty call.
//
// This is the sole channel surrounding layers use to observe block state;
// polling is neither required nor supported.
type Notifier struct {
	block      string
	dispatcher *bus.Bus
}

// NewNotifier creates a notifier for the named block.
func NewNotifier(block string, logger *slog.Logger) *Notifier {
	return &Notifier{
		block:      block,
		dispatcher: bus.New(logger),
	}
}

// Subscribe registers a listener for one property, or for all properties of
// the block when property is Wildcard.
func (n *Notifier) Subscribe(property string, l Listener) (bus.Subscription, error) {
	return n.dispatcher.Subscribe(property, func(event any) {
		if change, ok := event.(Change); ok {
			l(change)
		}
	})
}

// Unsubscribe removes a previously registered listener.
func (n *Notifier) Unsubscribe(sub bus.Subscription) {
	n.dispatcher.Unsubscribe(sub)
}

// notify delivers a change to the property's listeners and then to the
// block's wildcard listeners.
func (n *Notifier) notify(change Change) {
	n.dispatcher.Publish(change.Property, change)
	n.dispatcher.Publish(Wildcard, change)
}
