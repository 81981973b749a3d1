// Package pubsub is the named-channel publish/subscribe bus that fans
// snippet deltas out to every live session watching the same snippet.
//
// DELIVERY GUARANTEES (deliberately weak):
// - at-most-once per message per currently-subscribed client
// - no history or replay for late joiners
// - no ordering guarantee across subscribers
// - messages are silently dropped during transport outages
//
// The rest of the system is built to tolerate this: a client that misses a
// delta simply diverges until its next explicit fetch. Every call site
// treats Publish as best-effort — a publish failure is logged and swallowed,
// never allowed to fail the mutation it accompanies.
package pubsub

import (
	"context"
	"encoding/json"
)

// Channel and event names are a wire contract shared with every subscriber,
// so they live here as the single source of truth.
const (
	// EventCodeUpdate is the event name carried by content deltas.
	EventCodeUpdate = "code-update"

	snippetChannelPrefix = "snippet-"
)

// SnippetChannel returns the pub/sub channel for one snippet id,
// e.g. "snippet-cv37rs3pp9olc6atsptg".
func SnippetChannel(id string) string {
	return snippetChannelPrefix + id
}

// Event is one message delivered to a subscriber. Data is left as raw JSON
// so the bus stays payload-agnostic — receivers decode into whatever shape
// the event name implies.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Delta is the payload of a code-update event: the fields of a snippet that
// are "live" in an editor. Receivers merge it shallowly over local state.
type Delta struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Broker publishes and subscribes to named channels.
type Broker interface {
	// Publish sends one event on a channel. Best-effort: callers log the
	// returned error and move on, they never propagate it.
	Publish(ctx context.Context, channel, event string, payload any) error

	// Subscribe starts listening on a channel. The returned Subscription
	// delivers events until Close is called.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is a live attachment to one channel.
type Subscription interface {
	// Events yields inbound events. The channel is closed when the
	// subscription ends (Close called or transport lost).
	Events() <-chan Event

	// Close unsubscribes and releases the underlying connection. A view
	// that is going away must Close so deliveries don't leak into it.
	Close() error
}
