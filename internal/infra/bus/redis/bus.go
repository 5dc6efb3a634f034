// Package redis implements the event bus over Redis pub/sub so pushes reach
// clients connected to any node.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"permitdesk/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.EventBus = (*Bus)(nil)

const channelPrefix = "permitdesk:events:"

// Bus publishes events to per-user Redis channels.
type Bus struct {
	client redis.UniversalClient
}

// New wraps an existing Redis client.
func New(client redis.UniversalClient) *Bus { return &Bus{client: client} }

// Open dials addr and returns a bus over the new connection.
func Open(ctx context.Context, addr string) (*Bus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client), nil
}

// Channel returns the pub/sub channel name carrying a user's events.
func Channel(userID string) string { return channelPrefix + userID }

// Publish serializes the event and publishes it to the user's channel.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(ev.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe returns a channel receiving the user's events, decoded from the
// Redis subscription. Cancel the context to release it.
func (b *Bus) Subscribe(ctx context.Context, userID string) <-chan domain.Event {
	sub := b.client.Subscribe(ctx, Channel(userID))
	out := make(chan domain.Event, 16)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue // skip malformed payloads
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
