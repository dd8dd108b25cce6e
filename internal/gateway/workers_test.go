package gateway_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attitudes-vip/event-gateway/internal/gateway"
)

func TestPoolExecutesSubmittedTasks(t *testing.T) {
	p := gateway.NewPool(2, 16, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		ok := p.Submit(func(ctx context.Context) { ran.Add(1) })
		require.True(t, ok)
	}

	require.Eventually(t, func() bool {
		return ran.Load() == 10
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), p.Dropped())

	cancel()
	<-done
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	// No workers running: the queue fills and stays full.
	p := gateway.NewPool(1, 2, discardLogger())

	noop := func(ctx context.Context) {}
	assert.True(t, p.Submit(noop))
	assert.True(t, p.Submit(noop))
	assert.False(t, p.Submit(noop), "submit past queue depth must not block")
	assert.Equal(t, int64(1), p.Dropped())
}

func TestPoolStopsOnCancel(t *testing.T) {
	p := gateway.NewPool(3, 16, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}
