package stream

import "github.com/rzbill/strom/internal/persistence"

// EntryResponse is a subscriber's verdict after an entry or head delivery.
type EntryResponse int

const (
	// EntryMore asks the runner to keep delivering.
	EntryMore EntryResponse = iota
	// EntryDone ends the subscription normally.
	EntryDone
)

// TerminationResponse is a subscriber's verdict on a termination request.
type TerminationResponse int

const (
	// TerminationWait asks the runner to drain pending entries before exiting.
	TerminationWait TerminationResponse = iota
	// TerminationDone exits immediately.
	TerminationDone
)

// Subscriber receives entries, head advances, and the termination request of
// one subscription. Callbacks run on the subscription's own goroutine, in
// index order.
type Subscriber[E any] interface {
	// OnEntry delivers one entry at position current; last is the position of
	// the newest published entry at delivery time.
	OnEntry(entry E, current, last persistence.IdxTs) EntryResponse
	// OnHead reports that the head advanced past the last delivered entry.
	OnHead(us persistence.Micros) EntryResponse
	// OnTerminate is called once when termination is requested.
	OnTerminate() TerminationResponse
}

// TypeFilter narrows a subscription to a subset of entries. When Match
// rejects an entry, the runner skips delivery and consults ResponseIfSkipped
// so the subscriber can still short-circuit.
type TypeFilter[E any] interface {
	Match(entry E) bool
	ResponseIfSkipped() EntryResponse
}

// SubscriberFuncs adapts plain functions to the Subscriber interface.
// Nil callbacks default to EntryMore / TerminationDone.
type SubscriberFuncs[E any] struct {
	Entry     func(entry E, current, last persistence.IdxTs) EntryResponse
	Head      func(us persistence.Micros) EntryResponse
	Terminate func() TerminationResponse
}

// OnEntry implements Subscriber.
func (s SubscriberFuncs[E]) OnEntry(entry E, current, last persistence.IdxTs) EntryResponse {
	if s.Entry == nil {
		return EntryMore
	}
	return s.Entry(entry, current, last)
}

// OnHead implements Subscriber.
func (s SubscriberFuncs[E]) OnHead(us persistence.Micros) EntryResponse {
	if s.Head == nil {
		return EntryMore
	}
	return s.Head(us)
}

// OnTerminate implements Subscriber.
func (s SubscriberFuncs[E]) OnTerminate() TerminationResponse {
	if s.Terminate == nil {
		return TerminationDone
	}
	return s.Terminate()
}

type subscribeConfig[E any] struct {
	beginIdx uint64
	doneCb   func()
	filter   TypeFilter[E]
}

// SubscribeOption configures one subscription.
type SubscribeOption[E any] func(*subscribeConfig[E])

// FromIndex starts delivery at the given index instead of 0. A subscription
// starting past the current size blocks until the stream catches up.
func FromIndex[E any](idx uint64) SubscribeOption[E] {
	return func(c *subscribeConfig[E]) { c.beginIdx = idx }
}

// WithDoneCallback runs fn when the subscription finishes, under the HTTP
// registry lock. Used by the HTTP endpoint for registry cleanup.
func WithDoneCallback[E any](fn func()) SubscribeOption[E] {
	return func(c *subscribeConfig[E]) { c.doneCb = fn }
}

// WithTypeFilter narrows the subscription with a TypeFilter.
func WithTypeFilter[E any](f TypeFilter[E]) SubscribeOption[E] {
	return func(c *subscribeConfig[E]) { c.filter = f }
}
