package stream

import "github.com/rzbill/strom/internal/persistence"

// Publisher is the single-holder write capability of a stream. At most one
// Publisher exists per stream at any time; it can be transferred out via
// Stream.MovePublisherTo and reinstalled via Stream.AcquirePublisher, which
// is how replication tooling becomes the sole writer.
//
// Each operation locks the publish mutex, applies the persister's
// already-locked operation, and broadcasts the notifier so blocked
// subscribers wake.
type Publisher[E any] struct {
	st *state[E]
}

// Publish appends an entry with an auto-assigned timestamp.
func (p *Publisher[E]) Publish(entry E) (persistence.IdxTs, error) {
	return p.publish(func() (persistence.IdxTs, error) {
		return p.st.persister.PublishLocked(entry)
	})
}

// PublishAt appends an entry with the supplied timestamp.
func (p *Publisher[E]) PublishAt(entry E, us persistence.Micros) (persistence.IdxTs, error) {
	return p.publish(func() (persistence.IdxTs, error) {
		return p.st.persister.PublishAtLocked(entry, us)
	})
}

func (p *Publisher[E]) publish(op func() (persistence.IdxTs, error)) (persistence.IdxTs, error) {
	if p.st.shutdown.Load() {
		return persistence.IdxTs{}, ErrStreamInGracefulShutdown
	}
	mu := p.st.persister.Mutex()
	mu.Lock()
	pos, err := op()
	if err == nil {
		p.st.notifier.NotifyAll()
	}
	mu.Unlock()
	if err != nil {
		return persistence.IdxTs{}, err
	}
	p.st.metrics.EntryPublished()
	return pos, nil
}

// UpdateHead advances the head without appending, using an auto-assigned
// timestamp. Returns the new head.
func (p *Publisher[E]) UpdateHead() (persistence.Micros, error) {
	if p.st.shutdown.Load() {
		return 0, ErrStreamInGracefulShutdown
	}
	mu := p.st.persister.Mutex()
	mu.Lock()
	us, err := p.st.persister.UpdateHeadLocked()
	if err == nil {
		p.st.notifier.NotifyAll()
	}
	mu.Unlock()
	if err != nil {
		return 0, err
	}
	p.st.metrics.HeadUpdated()
	return us, nil
}

// UpdateHeadAt advances the head to the supplied timestamp.
func (p *Publisher[E]) UpdateHeadAt(us persistence.Micros) error {
	if p.st.shutdown.Load() {
		return ErrStreamInGracefulShutdown
	}
	mu := p.st.persister.Mutex()
	mu.Lock()
	err := p.st.persister.UpdateHeadAtLocked(us)
	if err == nil {
		p.st.notifier.NotifyAll()
	}
	mu.Unlock()
	if err != nil {
		return err
	}
	p.st.metrics.HeadUpdated()
	return nil
}
