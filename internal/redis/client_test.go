package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/attitudes-vip/event-gateway/internal/redis"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redisclient.NewClient(redisclient.Config{
		Addr:         mr.Addr(),
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.RDB.Ping(ctx).Err())

	require.NoError(t, client.RDB.Set(ctx, "k", "v", 0).Err())
	got, err := client.RDB.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestClientSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redisclient.NewClient(redisclient.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.RDB.Subscribe(ctx, "events")
	t.Cleanup(func() { _ = sub.Close() })

	// Receive the subscription confirmation before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	mr.Publish("events", "hello")

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "events", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received on subscription")
	}
}

func TestClientClose(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redisclient.NewClient(redisclient.Config{Addr: mr.Addr()})
	require.NoError(t, client.Close())

	err := client.RDB.Ping(context.Background()).Err()
	assert.Error(t, err)
}
