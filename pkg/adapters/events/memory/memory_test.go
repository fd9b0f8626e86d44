package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	ctx := context.Background()

	var got []string
	require.NoError(t, bus.Subscribe(ctx, "t", func(ctx context.Context, e domain.Event) error {
		got = append(got, "a:"+e.ID)
		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx, "t", func(ctx context.Context, e domain.Event) error {
		got = append(got, "b:"+e.ID)
		return errors.New("ignored")
	}))

	require.NoError(t, bus.Publish(ctx, "t", domain.Event{ID: "1"}))
	require.NoError(t, bus.Publish(ctx, "other", domain.Event{ID: "2"}))

	assert.Equal(t, []string{"a:1", "b:1"}, got)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, bus.Subscribe(ctx, "t", func(context.Context, domain.Event) error { return nil }))
	require.NoError(t, bus.Subscribe(context.Background(), "t", func(context.Context, domain.Event) error { return nil }))
	assert.Equal(t, 2, bus.Subscribers("t"))

	cancel()
	assert.Eventually(t, func() bool { return bus.Subscribers("t") == 1 }, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeAndClose(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, bus.Subscribe(ctx, "a", func(context.Context, domain.Event) error { return nil }))
	require.NoError(t, bus.Subscribe(ctx, "b", func(context.Context, domain.Event) error { return nil }))

	require.NoError(t, bus.Unsubscribe(ctx, "a"))
	assert.Equal(t, 0, bus.Subscribers("a"))
	assert.Equal(t, 1, bus.Subscribers("b"))

	require.NoError(t, bus.Close())
	assert.Equal(t, 0, bus.Subscribers("b"))
}
