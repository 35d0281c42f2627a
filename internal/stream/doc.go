// Package stream implements Strom's core engine: persistent, append-only,
// typed event streams with in-process publishing, multi-subscriber fan-out,
// and an HTTP pub/sub endpoint.
//
// # Overview
//
// A stream pairs a persistence.Persister with publisher/subscriber
// coordination. Entries are annotated with a 0-based dense index and a
// strictly increasing epoch-microsecond timestamp. The head timestamp may
// advance past the last entry (heartbeat) and never regresses.
//
//	s := stream.New(persistence.NewMemory[Event]())
//	pos, _ := s.Publish(Event{...})
//
//	scope, _ := s.Subscribe(stream.SubscriberFuncs[Event]{
//		Entry: func(e Event, cur, last persistence.IdxTs) stream.EntryResponse {
//			// runs on the subscription's own goroutine, in index order
//			return stream.EntryMore
//		},
//	})
//	defer scope.Close() // signals termination and joins the runner
//
// Publishing is a single-holder capability: MovePublisherTo hands the
// Publisher to replication tooling and flips the stream's data authority to
// external; AcquirePublisher reverses it.
//
// # HTTP pub/sub
//
// Stream implements http.Handler. GET serves a long-lived chunked feed, one
// JSON line per entry; query options select the start point (i, tail,
// recent, since), bound the feed (n, nowait), or switch modes (sizeonly,
// schema, terminate). Subscriptions are identified by a random id returned
// in the X-Current-Stream-Subscription-Id header and cancellable via
// ?terminate=<id>.
package stream
