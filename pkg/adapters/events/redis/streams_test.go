package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStreamKey(t *testing.T) {
	assert.Equal(t, "docgen:events:run.events", getStreamKey(domain.TopicRunEvents))
}

func TestPublishSubscribe(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	bus := NewStreamsEventBus(client, 100, zap.NewNop())
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, bus.Subscribe(ctx, "test.topic", func(ctx context.Context, e domain.Event) error {
		mu.Lock()
		got = append(got, e.RunID)
		mu.Unlock()
		return nil
	}))

	// The reader starts at the stream end, so keep publishing until it is
	// attached and has seen an event.
	require.Eventually(t, func() bool {
		require.NoError(t, bus.Publish(context.Background(), "test.topic", domain.Event{ID: "e", RunID: "run-1"}))
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "run-1", got[0])
	mu.Unlock()
}
