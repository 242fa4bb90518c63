// Package redisbus adapts Redis Pub/Sub to the transport.PubSub interface
// so rooms span multiple application nodes.
package redisbus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/collabrixo/collabrixo/internal/application/config"
	"github.com/collabrixo/collabrixo/internal/transport"
)

type Bus struct {
	client *redis.Client
}

func New(ctx context.Context, cfg config.RedisConfig) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping: %w", transport.ErrTransport, err)
	}

	return &Bus{client: client}, nil
}

func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish to %s: %w", transport.ErrTransport, topic, err)
	}

	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (transport.Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)

	// Confirm the subscription is live before handing it out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: subscribe to %s: %w", transport.ErrTransport, topic, err)
	}

	s := &subscription{
		pubsub:   pubsub,
		messages: make(chan []byte, 64),
	}

	go s.pump()

	return s, nil
}

func (b *Bus) Close() error {
	return b.client.Close()
}

type subscription struct {
	pubsub   *redis.PubSub
	messages chan []byte
}

func (s *subscription) pump() {
	defer close(s.messages)

	for msg := range s.pubsub.Channel() {
		s.messages <- []byte(msg.Payload)
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.messages
}

func (s *subscription) Close() error {
	return s.pubsub.Close()
}
