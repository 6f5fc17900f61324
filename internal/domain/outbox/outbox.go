package outbox

import "context"

// Event is a named fact raised by the domain, such as "cart.item_removed".
type Event interface {
	EventName() string
}

// Handler reacts to one delivered event.
type Handler func(ctx context.Context, e Event) error

// Publisher hands events to the outbox. Publish returns once the event is
// queued, not once it has been handled.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber routes events by name to handlers.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
