package pubsub

import (
	"context"
	"testing"
	"time"
)

// The noop broker is what runs when REDIS_ADDR is unset, so its contract is
// "everything succeeds, nothing happens" — the degraded mode the rest of
// the system is designed around.

func TestNoopBroker_PublishSucceeds(t *testing.T) {
	broker := NewNoopBroker()

	err := broker.Publish(context.Background(), SnippetChannel("abc"), EventCodeUpdate, Delta{Code: "x"})
	if err != nil {
		t.Errorf("Publish() error = %v, want nil", err)
	}
}

func TestNoopBroker_SubscriptionNeverDelivers(t *testing.T) {
	broker := NewNoopBroker()

	sub, err := broker.Subscribe(context.Background(), SnippetChannel("abc"))
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Publish on the same channel; nothing may arrive.
	if err := broker.Publish(context.Background(), SnippetChannel("abc"), EventCodeUpdate, Delta{}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case ev := <-sub.Events():
		t.Errorf("noop subscription delivered %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if err := sub.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// After Close the events channel is closed, so a stale reader loop
	// terminates instead of blocking forever.
	if _, ok := <-sub.Events(); ok {
		t.Error("Events() should be closed after Close()")
	}
}
