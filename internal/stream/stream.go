package stream

import (
	"encoding/json"
	"runtime"
	"sync"
	"sync/atomic"

	logpkg "github.com/rzbill/strom/pkg/log"

	"github.com/rzbill/strom/internal/persistence"
)

// Raw is the schemaless entry type used by server-hosted streams: payloads
// pass through as opaque JSON.
type Raw = json.RawMessage

// Authority says who currently holds the write capability of a stream.
type Authority int

const (
	// AuthorityOwn means the stream holds its own publisher.
	AuthorityOwn Authority = iota
	// AuthorityExternal means the publisher was transferred out.
	AuthorityExternal
)

// String returns the string representation of the authority.
func (a Authority) String() string {
	if a == AuthorityExternal {
		return "external"
	}
	return "own"
}

// state is the engine state shared by the stream façade and every
// subscription runner. Runners hold it directly, so it stays valid for as
// long as any runner is live regardless of what happens to the façade.
type state[E any] struct {
	persister persistence.Persister[E]
	notifier  *Notifier
	codec     persistence.Codec[E]
	schema    SchemaDescriptor
	logger    logpkg.Logger
	metrics   Metrics

	shutdown atomic.Bool

	// httpMu guards httpSubs. Lock order: httpMu before the publish mutex;
	// httpMu is never acquired while the publish mutex is held.
	httpMu   sync.Mutex
	httpSubs map[string]*httpSubscription
}

type httpSubscription struct {
	scope *SubscriberScope
}

// Option configures a Stream.
type Option[E any] func(*state[E])

// WithLogger injects the logger used by the stream and its subscriptions.
func WithLogger[E any](logger logpkg.Logger) Option[E] {
	return func(st *state[E]) { st.logger = logger }
}

// WithSchema attaches the schema descriptor served by the HTTP endpoint.
func WithSchema[E any](schema SchemaDescriptor) Option[E] {
	return func(st *state[E]) { st.schema = schema }
}

// WithCodec overrides the codec used to render entries on the wire.
func WithCodec[E any](codec persistence.Codec[E]) Option[E] {
	return func(st *state[E]) { st.codec = codec }
}

// WithMetrics injects the metrics hook.
func WithMetrics[E any](m Metrics) Option[E] {
	return func(st *state[E]) { st.metrics = m }
}

// Stream is a persistent, append-only, typed event stream: the unit users
// instantiate. It owns the persister, the head clock, the notifier, the
// publisher slot, and the HTTP subscription registry.
type Stream[E any] struct {
	state *state[E]

	// pubMu guards the publisher slot; disjoint from both the publish mutex
	// and httpMu.
	pubMu     sync.Mutex
	publisher *Publisher[E]
	authority Authority
}

// New builds a stream over the given persister.
func New[E any](p persistence.Persister[E], opts ...Option[E]) *Stream[E] {
	st := &state[E]{
		persister: p,
		notifier:  NewNotifier(p.Mutex()),
		codec:     persistence.JSONCodec[E]{},
		schema:    DefaultSchema(),
		logger:    logpkg.NewNopLogger(),
		metrics:   NopMetrics{},
		httpSubs:  map[string]*httpSubscription{},
	}
	for _, opt := range opts {
		opt(st)
	}
	s := &Stream[E]{state: st, authority: AuthorityOwn}
	s.publisher = &Publisher[E]{st: st}
	return s
}

// Publish appends an entry with an auto-assigned timestamp.
func (s *Stream[E]) Publish(entry E) (persistence.IdxTs, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.publisher == nil {
		return persistence.IdxTs{}, ErrPublishToReleasedPublisher
	}
	return s.publisher.Publish(entry)
}

// PublishAt appends an entry with the supplied timestamp.
func (s *Stream[E]) PublishAt(entry E, us persistence.Micros) (persistence.IdxTs, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.publisher == nil {
		return persistence.IdxTs{}, ErrPublishToReleasedPublisher
	}
	return s.publisher.PublishAt(entry, us)
}

// UpdateHead advances the head without appending. Returns the new head.
func (s *Stream[E]) UpdateHead() (persistence.Micros, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.publisher == nil {
		return 0, ErrPublishToReleasedPublisher
	}
	return s.publisher.UpdateHead()
}

// UpdateHeadAt advances the head to the supplied timestamp.
func (s *Stream[E]) UpdateHeadAt(us persistence.Micros) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.publisher == nil {
		return ErrPublishToReleasedPublisher
	}
	return s.publisher.UpdateHeadAt(us)
}

// MovePublisherTo atomically hands the unique publisher to the acquirer and
// flips the data authority to external. Subsequent publishes on this stream
// fail until AcquirePublisher reinstalls it.
func (s *Stream[E]) MovePublisherTo(acquire func(*Publisher[E])) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.publisher == nil {
		return ErrPublisherAlreadyReleased
	}
	p := s.publisher
	s.publisher = nil
	s.authority = AuthorityExternal
	acquire(p)
	return nil
}

// AcquirePublisher reinstalls a previously moved-out publisher.
func (s *Stream[E]) AcquirePublisher(p *Publisher[E]) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.publisher != nil {
		return ErrPublisherAlreadyOwned
	}
	s.publisher = p
	s.authority = AuthorityOwn
	return nil
}

// DataAuthority reports who currently holds the publisher.
func (s *Stream[E]) DataAuthority() Authority {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	return s.authority
}

// Subscribe starts a subscription running sub on its own goroutine and
// returns the scope handle owning it.
func (s *Stream[E]) Subscribe(sub Subscriber[E], opts ...SubscribeOption[E]) (*SubscriberScope, error) {
	st := s.state
	if st.shutdown.Load() {
		return nil, ErrStreamInGracefulShutdown
	}
	var cfg subscribeConfig[E]
	for _, opt := range opts {
		opt(&cfg)
	}
	r := newRunner(st, sub, cfg)
	st.metrics.SubscriberStarted()
	go r.run()
	return &SubscriberScope{terminate: r.asyncTerminate, joined: r.joined}, nil
}

// Persister exposes read-only iteration for tools.
func (s *Stream[E]) Persister() persistence.Persister[E] { return s.state.persister }

// Schema returns the stream's schema descriptor.
func (s *Stream[E]) Schema() SchemaDescriptor { return s.state.schema }

// Close puts the stream into graceful shutdown: subsequent Publish and
// Subscribe calls fail, every registered HTTP subscription is terminated
// asynchronously, and Close returns once the registry has drained. Scopes
// held by in-process callers stay theirs to close.
func (s *Stream[E]) Close() error {
	st := s.state
	if !st.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	st.httpMu.Lock()
	for _, sub := range st.httpSubs {
		sub.scope.AsyncTerminate()
	}
	st.httpMu.Unlock()
	for {
		st.httpMu.Lock()
		empty := len(st.httpSubs) == 0
		st.httpMu.Unlock()
		if empty {
			break
		}
		runtime.Gosched()
	}
	return s.state.persister.Close()
}
