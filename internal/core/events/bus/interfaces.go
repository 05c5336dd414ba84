package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus.
//
// - Handlers subscribe by Event.Type().
// - Publish calls handlers synchronously, in subscription order, in the caller goroutine.
// - Handler errors are joined and returned from Publish.
// - Filters run before delivery; a rejected event is dropped without error.
type EventBus interface {
	Publish(event Event) error
	PublishWithFilters(event Event, filters ...EventFilter) error
	PublishAsync(event Event) <-chan error

	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. It is safe to call with nil.
	Unsubscribe(Subscription) error

	GetMetrics() EventBusMetrics
}

// Event is an immutable message transported by the EventBus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
	Metadata() map[string]any
}

type (
	EventHandler func(event Event) error
	// EventFilter decides whether an event should be delivered.
	EventFilter func(event Event) bool
)

// Subscription represents a registered handler bound to an event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

type EventBusMetrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	DroppedByFilters  uint64
	SubscribersActive uint64
}
