package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/a-kuz/shader-maker/pkg/channels/gochannel"
	"github.com/a-kuz/shader-maker/pkg/eventbus"
)

// NewEventBus creates the in-process event bus carrying lifecycle events.
func NewEventBus(logger *slog.Logger) (eventbus.EventBus, error) {
	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create event channel: %w", err)
	}

	return eventbus.NewWatermillEventBus(pub, sub), nil
}
