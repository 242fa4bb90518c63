// Package hubbus adapts an in-process event hub to the transport.PubSub
// interface. It backs single-node deployments and tests.
package hubbus

import (
	"context"

	"github.com/leandro-lugaresi/hub"

	"github.com/collabrixo/collabrixo/internal/transport"
)

const payloadField = "payload"

type Bus struct {
	hub *hub.Hub
}

func New() *Bus {
	return &Bus{hub: hub.New()}
}

func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.hub.Publish(hub.Message{
		Name:   topic,
		Fields: hub.Fields{payloadField: payload},
	})

	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (transport.Subscription, error) {
	sub := b.hub.Subscribe(64, topic)

	s := &subscription{
		bus:      b,
		sub:      sub,
		messages: make(chan []byte, 64),
		done:     make(chan struct{}),
	}

	go s.pump()

	return s, nil
}

type subscription struct {
	bus      *Bus
	sub      hub.Subscription
	messages chan []byte
	done     chan struct{}
}

func (s *subscription) pump() {
	defer close(s.messages)

	for msg := range s.sub.Receiver {
		payload, ok := msg.Fields[payloadField].([]byte)
		if !ok {
			continue
		}

		select {
		case s.messages <- payload:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.messages
}

func (s *subscription) Close() error {
	s.bus.hub.Unsubscribe(s.sub)
	close(s.done)

	return nil
}
