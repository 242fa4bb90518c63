package transport

import (
	"context"
	"errors"
)

// ErrTransport marks publish/subscribe failures. Callers match it with
// errors.Is; no retry happens at this layer.
var ErrTransport = errors.New("signaling transport failure")

// PubSub is the room-topic channel the signaling client runs over.
type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription delivers every payload published to its topic, including
// the subscriber's own, until closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
