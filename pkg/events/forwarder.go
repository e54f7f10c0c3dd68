package events

import (
	"context"
	"time"

	"cancelflow-be/internal/pkg/logger"
)

// Publisher ships events out of the process (NATS JetStream in production).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Forward republishes every event of the given types to an external publisher.
// Publish failures are logged and never reach the emitter.
func Forward(bus Bus, publisher Publisher, log logger.ILogger, eventTypes ...string) error {
	for _, eventType := range eventTypes {
		if err := bus.On(eventType, func(ctx context.Context, event Event) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := publisher.Publish(ctx, event); err != nil {
				log.Warn("EventForwarder", "Failed to forward event", map[string]interface{}{
					"event": event.EventType(),
					"error": err.Error(),
				})
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
