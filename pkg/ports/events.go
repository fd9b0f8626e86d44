package ports

import (
	"context"

	"github.com/aescanero/docgen/pkg/domain"
)

// EventHandler processes a single event
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers lifecycle events
type EventBus interface {
	// Publish sends an event to every subscriber of the topic
	Publish(ctx context.Context, topic string, event domain.Event) error

	// Subscribe registers a handler until ctx is cancelled
	Subscribe(ctx context.Context, topic string, handler EventHandler) error

	// Unsubscribe removes all handlers of a topic
	Unsubscribe(ctx context.Context, topic string) error

	// Close releases the bus resources
	Close() error
}
