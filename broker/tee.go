package broker

import (
	"context"

	"bananachat/contract"
	"bananachat/domain"
)

// Tee publishes to several brokers in order, typically the in-process
// dispatcher plus an external relay. The first failure is returned but every
// broker still gets the event.
type Tee struct {
	brokers []contract.Broker
}

func NewTee(brokers ...contract.Broker) *Tee {
	return &Tee{brokers: brokers}
}

func (t *Tee) Publish(ctx context.Context, destination string, e domain.ChatEvent) error {
	var firstErr error
	for _, b := range t.brokers {
		if err := b.Publish(ctx, destination, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
