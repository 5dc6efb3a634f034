// Package memory implements an in-process event bus for tests and single
// node deployments.
package memory

import (
	"context"
	"sync"

	"permitdesk/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.EventBus = (*Bus)(nil)

// Bus fans events out to per-user subscriber channels. Slow subscribers drop
// events rather than block publishers; delivery is best effort by contract.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan domain.Event
}

// New returns an empty in-process bus.
func New() *Bus { return &Bus{subs: make(map[string][]chan domain.Event)} }

// Subscribe returns a buffered channel receiving the user's events. Cancel
// the context to release the subscription.
func (b *Bus) Subscribe(ctx context.Context, userID string) <-chan domain.Event {
	ch := make(chan domain.Event, 16)
	b.mu.Lock()
	b.subs[userID] = append(b.subs[userID], ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[userID]
		for i, c := range subs {
			if c == ch {
				b.subs[userID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// Publish delivers the event to every live subscriber of its user.
func (b *Bus) Publish(_ context.Context, ev domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
		default: // subscriber full, drop
		}
	}
	return nil
}
