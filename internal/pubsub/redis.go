package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

var _ Broker = (*RedisBroker)(nil)

// RedisBroker implements Broker on top of Redis Pub/Sub.
//
// WHY REDIS PUB/SUB?
// Redis channels are exactly the semantics this system wants: fire-and-forget
// fan-out to whoever is subscribed right now, nothing persisted, nothing
// replayed. A message published while nobody listens just evaporates —
// which is fine, because a session always fetches full state before it
// subscribes.
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBroker connects to Redis and verifies the connection with a ping.
// A broker that can't reach Redis at startup is reported here so the caller
// can fall back to the noop broker instead of failing to boot.
func NewRedisBroker(ctx context.Context, addr, password string, logger *slog.Logger) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pubsub: pinging redis at %s: %w", addr, err)
	}

	return &RedisBroker{client: client, logger: logger}, nil
}

// Close releases the Redis connection pool.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Publish marshals the event envelope and PUBLISHes it on the channel.
// Redis reports how many subscribers received it; we don't care — zero
// subscribers is a perfectly normal outcome.
func (b *RedisBroker) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pubsub: marshaling %s payload: %w", event, err)
	}

	envelope, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("pubsub: marshaling %s envelope: %w", event, err)
	}

	if err := b.client.Publish(ctx, channel, envelope).Err(); err != nil {
		return fmt.Errorf("pubsub: publishing to %s: %w", channel, err)
	}

	return nil
}

// Subscribe opens a dedicated Redis subscription for the channel and pumps
// decoded envelopes into the Events channel from a goroutine.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	// go-redis confirms the SUBSCRIBE command inside Receive; doing it here
	// surfaces connection problems to the caller instead of losing them in
	// the pump goroutine.
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("pubsub: subscribing to %s: %w", channel, err)
	}

	sub := &redisSubscription{
		ps:     ps,
		events: make(chan Event, 16),
	}

	go func() {
		defer close(sub.events)
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("pubsub: dropping malformed message",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case sub.events <- ev:
			default:
				// Slow consumer: drop. The bus promises at-most-once,
				// never delivery — a reader that can't keep up diverges
				// and catches up on its next full fetch.
			}
		}
	}()

	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan Event
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

// Close unsubscribes. go-redis closes the message channel, which ends the
// pump goroutine and closes Events.
func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
