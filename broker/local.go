package broker

import (
	"bananachat/contract"
	"bananachat/domain"
	"context"
	"log/slog"
	"sync"
)

var _ contract.Broker = (*Local)(nil)

type set map[string]struct{}

// Local is the in-process broker binding: it fans published events out to
// locally held subscriptions. Delivery is best-effort with no retries or
// buffering; a slow or failing sink only loses its own delivery.
//
// It performs a two-step lookup on publish: destination → subscriber ids,
// then ids → live sinks. A subscriber listening on many destinations keeps
// its connection in a single place. Safe for concurrent use.
type Local struct {
	mu          sync.RWMutex
	sinks       map[string]contract.EventSink // subscriber id -> sink
	subscribers map[string]set                // destination -> subscriber ids
	log         *slog.Logger
}

func NewLocal(log *slog.Logger) *Local {
	return &Local{
		sinks:       make(map[string]contract.EventSink),
		subscribers: make(map[string]set),
		log:         log,
	}
}

// Subscribe registers a subscriber's sink and attaches it to a destination.
// Re-subscribing with the same id replaces the sink.
func (b *Local) Subscribe(subscriberID, destination string, sink contract.EventSink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sinks[subscriberID] = sink
	if _, ok := b.subscribers[destination]; !ok {
		b.subscribers[destination] = make(set)
	}
	b.subscribers[destination][subscriberID] = struct{}{}
}

// Unsubscribe detaches a subscriber from one destination, dropping empty
// destination entries so the map never leaks.
func (b *Local) Unsubscribe(subscriberID, destination string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ids, ok := b.subscribers[destination]; ok {
		delete(ids, subscriberID)
		if len(ids) == 0 {
			delete(b.subscribers, destination)
		}
	}
}

// Drop removes a subscriber entirely, e.g. on transport disconnect.
func (b *Local) Drop(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sinks, subscriberID)
	for destination, ids := range b.subscribers {
		delete(ids, subscriberID)
		if len(ids) == 0 {
			delete(b.subscribers, destination)
		}
	}
}

// Publish delivers the event to every sink currently attached to the
// destination. The subscriber snapshot is taken under the read lock; the
// sinks are invoked outside it.
func (b *Local) Publish(ctx context.Context, destination string, e domain.ChatEvent) error {
	for _, sink := range b.sinksFor(destination) {
		if err := sink.Consume(ctx, destination, e); err != nil {
			b.log.Warn("Sink delivery failed", "destination", destination, "error", err)
		}
	}
	return nil
}

func (b *Local) sinksFor(destination string) []contract.EventSink {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids, ok := b.subscribers[destination]
	if !ok {
		return nil
	}
	var active []contract.EventSink
	for id := range ids {
		if sink, exists := b.sinks[id]; exists {
			active = append(active, sink)
		}
	}
	return active
}
