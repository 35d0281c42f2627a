package stream

import (
	"sync/atomic"

	logpkg "github.com/rzbill/strom/pkg/log"

	"github.com/rzbill/strom/internal/persistence"
)

// SubscriberScope is the lifetime handle of one subscription. Dropping it
// (Close) signals termination and joins the runner goroutine, which binds
// the runner's lifetime to whatever level of the call stack holds the scope.
type SubscriberScope struct {
	terminate func()
	joined    <-chan struct{}
}

// AsyncTerminate requests termination without waiting. Idempotent.
func (s *SubscriberScope) AsyncTerminate() { s.terminate() }

// Close terminates the subscription and waits for the runner to finish.
func (s *SubscriberScope) Close() error {
	s.terminate()
	<-s.joined
	return nil
}

// Done is closed once the runner has finished.
func (s *SubscriberScope) Done() <-chan struct{} { return s.joined }

// runner is the per-subscription worker. It iterates available entries,
// invokes the subscriber's callbacks, blocks on the notifier when caught up,
// and terminates on signal.
type runner[E any] struct {
	st       *state[E]
	sub      Subscriber[E]
	filter   TypeFilter[E]
	beginIdx uint64
	doneCb   func()

	terminated atomic.Bool
	joined     chan struct{}
}

func newRunner[E any](st *state[E], sub Subscriber[E], cfg subscribeConfig[E]) *runner[E] {
	return &runner[E]{
		st:       st,
		sub:      sub,
		filter:   cfg.filter,
		beginIdx: cfg.beginIdx,
		doneCb:   cfg.doneCb,
		joined:   make(chan struct{}),
	}
}

// asyncTerminate raises the termination flag and wakes the runner if it is
// blocked. Idempotent.
func (r *runner[E]) asyncTerminate() {
	if r.terminated.CompareAndSwap(false, true) {
		mu := r.st.persister.Mutex()
		mu.Lock()
		r.st.notifier.NotifyAll()
		mu.Unlock()
	}
}

// run executes the subscription until the subscriber says Done, termination
// completes, or a callback panics. A panic terminates only this
// subscription. The done callback fires under the HTTP registry lock so the
// endpoint's cleanup task can find a fully initialized registry entry.
func (r *runner[E]) run() {
	defer func() {
		if rec := recover(); rec != nil {
			r.st.logger.Error("subscriber callback panicked, terminating subscription",
				logpkg.Any("panic", rec))
		}
		r.st.httpMu.Lock()
		if r.doneCb != nil {
			r.doneCb()
		}
		r.st.httpMu.Unlock()
		r.st.metrics.SubscriberDone()
		close(r.joined)
	}()
	r.loop()
}

func (r *runner[E]) loop() {
	p := r.st.persister
	lastHeadSeen := persistence.Micros(-1)
	index := r.beginIdx
	terminateSent := false

	// shouldExit delivers the one-time Terminate callback when the signal is
	// raised; true means stop now, false means keep draining.
	shouldExit := func() bool {
		if !terminateSent && r.terminated.Load() {
			terminateSent = true
			if r.sub.OnTerminate() != TerminationWait {
				return true
			}
		}
		return false
	}

	for {
		if shouldExit() {
			return
		}
		snapshot := p.HeadAndLast()
		size := snapshot.Size()
		if snapshot.Head > lastHeadSeen {
			if size > index {
				it := p.Iterate(index, size)
				for it.Next() {
					if shouldExit() {
						_ = it.Close()
						return
					}
					if r.deliver(it.Entry()) == EntryDone {
						_ = it.Close()
						return
					}
				}
				_ = it.Close()
				index = size
				lastHeadSeen = snapshot.Last.Us
			}
			if size > r.beginIdx && snapshot.Head > lastHeadSeen {
				if r.sub.OnHead(snapshot.Head) == EntryDone {
					return
				}
			}
			lastHeadSeen = snapshot.Head
		} else {
			if terminateSent {
				// Drained after a Wait termination response.
				return
			}
			mu := p.Mutex()
			mu.Lock()
			r.st.notifier.WaitUntil(func() bool {
				return r.terminated.Load() ||
					p.SizeLocked() > index ||
					(index > r.beginIdx && p.CurrentHeadLocked() > lastHeadSeen)
			})
			mu.Unlock()
		}
	}
}

func (r *runner[E]) deliver(e persistence.IndexedEntry[E]) EntryResponse {
	if r.filter != nil && !r.filter.Match(e.Entry) {
		return r.filter.ResponseIfSkipped()
	}
	last := r.st.persister.HeadAndLast().Last
	return r.sub.OnEntry(e.Entry, e.IdxTs, *last)
}
