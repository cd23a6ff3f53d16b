package coordinator

import "github.com/roach88/consent/internal/capability"

// EventType names a coordinator lifecycle event.
type EventType string

const (
	// EventQueued: a new stack was registered.
	EventQueued EventType = "queued"
	// EventJoined: a handler was pushed onto an existing stack.
	EventJoined EventType = "joined"
	// EventIssued: the platform request for a stack was made.
	EventIssued EventType = "issued"
	// EventDeferred: a stack was due for issuance but no live context was bound.
	EventDeferred EventType = "deferred"
	// EventResolved: a stack was removed with a result.
	EventResolved EventType = "resolved"
	// EventDelivered: one handler received the result.
	EventDelivered EventType = "delivered"
	// EventDeliveryFailed: one handler returned an error or panicked.
	EventDeliveryFailed EventType = "delivery_failed"
	// EventUnknownResult: a result arrived for a key with no stack.
	EventUnknownResult EventType = "unknown_result"
	// EventMalformedResult: a result was rejected before lookup.
	EventMalformedResult EventType = "malformed_result"
)

// Event describes one step of the coordinator's work.
//
// Seq comes from the coordinator's Clock and is strictly increasing. Events are
// emitted outside the registry lock, in seq order per calling goroutine.
type Event struct {
	Seq          int64
	Type         EventType
	Key          string
	StackID      string
	RequestCode  int
	Capabilities []string

	// Handler is the handler index for delivered/delivery_failed.
	Handler int

	// Handlers is the stack size for queued/joined/resolved.
	Handlers int

	// Result is set for resolved, delivered and delivery_failed.
	Result *capability.ResultSet

	// Err is set for delivery_failed and malformed_result.
	Err error
}

// Observer receives coordinator events. Implementations must not call back into
// the coordinator synchronously from Observe.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans events out to several observers in order.
type Observers []Observer

// Observe forwards e to every observer.
func (o Observers) Observe(e Event) {
	for _, obs := range o {
		obs.Observe(e)
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
