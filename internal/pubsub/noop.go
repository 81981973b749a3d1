package pubsub

import "context"

var _ Broker = (*NoopBroker)(nil)

// NoopBroker is the broker used when no pub/sub transport is configured
// (REDIS_ADDR unset). The application must keep working without real-time
// propagation: a single session can still load, edit, and save — only
// cross-client fan-out is lost. Publish discards everything and
// subscriptions simply never deliver.
type NoopBroker struct{}

// NewNoopBroker returns the inert broker.
func NewNoopBroker() *NoopBroker {
	return &NoopBroker{}
}

// Publish discards the event.
func (*NoopBroker) Publish(_ context.Context, _, _ string, _ any) error {
	return nil
}

// Subscribe returns a subscription that never delivers anything.
func (*NoopBroker) Subscribe(_ context.Context, _ string) (Subscription, error) {
	return &noopSubscription{events: make(chan Event)}, nil
}

type noopSubscription struct {
	events chan Event
	closed bool
}

func (s *noopSubscription) Events() <-chan Event {
	return s.events
}

func (s *noopSubscription) Close() error {
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
