// Package projection holds in-memory read models fed by the broker.
//
// Projections are best-effort side views for observability and quick reads;
// the durable event log stays the source of truth.
package projection

import (
	"context"
	"sync"

	"bananachat/domain"
)

const defaultCapacity = 200

// Timeline keeps the most recent events per destination in a bounded window.
// Older entries fall off as new ones arrive. Safe for concurrent use.
type Timeline struct {
	mu       sync.RWMutex
	capacity int
	events   map[string][]domain.ChatEvent
}

func NewTimeline(capacity int) *Timeline {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Timeline{capacity: capacity, events: make(map[string][]domain.ChatEvent)}
}

// Consume implements the broker sink contract.
func (t *Timeline) Consume(_ context.Context, destination string, e domain.ChatEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	window := append(t.events[destination], e)
	if len(window) > t.capacity {
		window = window[len(window)-t.capacity:]
	}
	t.events[destination] = window
	return nil
}

// Recent returns a snapshot of the retained window for a destination,
// oldest first.
func (t *Timeline) Recent(destination string) []domain.ChatEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	window := t.events[destination]
	out := make([]domain.ChatEvent, len(window))
	copy(out, window)
	return out
}

// Destinations lists every destination that has received at least one event.
func (t *Timeline) Destinations() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.events))
	for d := range t.events {
		out = append(out, d)
	}
	return out
}
