package hubbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabrixo/collabrixo/internal/transport/hubbus"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()

	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	bus := hubbus.New()
	ctx := context.Background()

	first, err := bus.Subscribe(ctx, "room:1")
	require.NoError(t, err)
	defer first.Close()

	second, err := bus.Subscribe(ctx, "room:1")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, bus.Publish(ctx, "room:1", []byte("hello")))

	assert.Equal(t, []byte("hello"), recv(t, first.Messages()))
	assert.Equal(t, []byte("hello"), recv(t, second.Messages()))
}

func TestTopicsAreIsolated(t *testing.T) {
	t.Parallel()

	bus := hubbus.New()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "room:1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, "room:2", []byte("other room")))
	require.NoError(t, bus.Publish(ctx, "room:1", []byte("this room")))

	assert.Equal(t, []byte("this room"), recv(t, sub.Messages()))
}

func TestCloseStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := hubbus.New()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "room:1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	// publishing after close must not block or panic
	require.NoError(t, bus.Publish(ctx, "room:1", []byte("late")))
}
