package stream

import "errors"

// Engine error kinds.
var (
	// ErrStreamInGracefulShutdown rejects any public call during stream
	// teardown.
	ErrStreamInGracefulShutdown = errors.New("stream: in graceful shutdown")
	// ErrPublishToReleasedPublisher rejects a publish on a stream whose
	// publisher was transferred out.
	ErrPublishToReleasedPublisher = errors.New("stream: publisher has been transferred out")
	// ErrPublisherAlreadyReleased rejects a second transfer of the publisher.
	ErrPublisherAlreadyReleased = errors.New("stream: publisher already released")
	// ErrPublisherAlreadyOwned rejects acquiring a publisher when one is held.
	ErrPublisherAlreadyOwned = errors.New("stream: publisher already owned")
	// ErrSubscriptionNotFound reports an unknown HTTP subscription-id.
	ErrSubscriptionNotFound = errors.New("stream: subscription not found")
)
