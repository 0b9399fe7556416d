package broker

import (
	"bananachat/contract"
	"bananachat/domain"
	"context"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var _ contract.Broker = (*Relay)(nil)

// Relay is the external-broker binding: it publishes routed events to Redis
// pub/sub channels named after the same destinations the in-process binding
// uses, so an external STOMP-style relay can forward them unchanged.
type Relay struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRelay(url string, log *slog.Logger) (*Relay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("broker url: %w", err)
	}
	return &Relay{client: redis.NewClient(opts), log: log}, nil
}

func (r *Relay) Publish(ctx context.Context, destination string, e domain.ChatEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, destination, payload).Err(); err != nil {
		return fmt.Errorf("relay publish to %s: %w", destination, err)
	}
	return nil
}

// Client exposes the underlying connection for the inbound subscriber side.
func (r *Relay) Client() *redis.Client {
	return r.client
}

func (r *Relay) Close() error {
	return r.client.Close()
}
