// Package signaling relays join/leave/offer/answer/candidate events scoped
// to one room over a transport.PubSub topic.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/collabrixo/collabrixo/internal/application/constant"
	"github.com/collabrixo/collabrixo/internal/application/metric"
	"github.com/collabrixo/collabrixo/internal/domain/signal"
	"github.com/collabrixo/collabrixo/internal/transport"
)

// Handler receives every envelope published to the room, including the
// local client's own. Callers self-filter on Sender where relevant.
type Handler func(env signal.Envelope)

type Client struct {
	bus transport.PubSub

	roomID   string
	userID   string
	userName string

	mu       sync.Mutex
	sub      transport.Subscription
	handlers []Handler
	done     chan struct{}
}

func NewClient(bus transport.PubSub, roomID, userID, userName string) *Client {
	return &Client{
		bus:      bus,
		roomID:   roomID,
		userID:   userID,
		userName: userName,
	}
}

func (c *Client) UserID() string { return c.userID }
func (c *Client) RoomID() string { return c.roomID }

// OnMessage registers a handler. Must be called before Join so no early
// envelope is missed.
func (c *Client) OnMessage(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, h)
}

// Join subscribes to the room topic and then announces presence. The
// subscription stays held until Leave, whatever the exit path.
func (c *Client) Join(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		return fmt.Errorf("already joined room %s", c.roomID)
	}

	sub, err := c.bus.Subscribe(ctx, c.roomID)
	if err != nil {
		return fmt.Errorf("subscribe to room %s: %w", c.roomID, err)
	}

	c.sub = sub
	c.done = make(chan struct{})

	go c.readLoop(sub)

	if err := c.publish(ctx, signal.NewJoin(c.userID, c.userName)); err != nil {
		c.releaseLocked()
		return err
	}

	return nil
}

// Leave announces departure and unconditionally releases the subscription.
// Safe to call more than once.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub == nil {
		return nil
	}

	err := c.publish(ctx, signal.NewLeave(c.userID))

	c.releaseLocked()

	return err
}

// Send publishes an arbitrary envelope to the room topic.
func (c *Client) Send(ctx context.Context, env signal.Envelope) error {
	return c.publish(ctx, env)
}

func (c *Client) publish(ctx context.Context, env signal.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}

	if err := c.bus.Publish(ctx, c.roomID, payload); err != nil {
		return fmt.Errorf("publish %s to room %s: %w", env.Type, c.roomID, err)
	}

	metric.RecordSignalingMessage(string(env.Type))

	return nil
}

func (c *Client) readLoop(sub transport.Subscription) {
	for {
		select {
		case <-c.done:
			return
		case payload, ok := <-sub.Messages():
			if !ok {
				return
			}

			var env signal.Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				slog.Error("unmarshal signaling envelope",
					slog.Any(constant.Error, err),
					slog.String(constant.RoomID, c.roomID),
				)
				continue
			}

			if !env.AddressedTo(c.userID) {
				continue
			}

			c.mu.Lock()
			handlers := make([]Handler, len(c.handlers))
			copy(handlers, c.handlers)
			c.mu.Unlock()

			for _, h := range handlers {
				h(env)
			}
		}
	}
}

// releaseLocked drops the subscription; callers hold c.mu.
func (c *Client) releaseLocked() {
	if c.sub == nil {
		return
	}

	close(c.done)

	if err := c.sub.Close(); err != nil {
		slog.Error("close room subscription",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, c.roomID),
		)
	}

	c.sub = nil
}
