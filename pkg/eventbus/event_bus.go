// Package eventbus provides in-process event distribution for process
// lifecycle notifications. The persisted update log remains the source
// of truth for polling clients; the bus only lets in-process observers
// react without polling.
package eventbus

import (
	"context"

	"github.com/a-kuz/shader-maker/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
