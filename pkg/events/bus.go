package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cancelflow-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Handler consumes one event. Errors are logged; the event is not redelivered.
type Handler func(ctx context.Context, event Event) error

// Bus is the in-process pub/sub used to decouple ingestion, analytics and the workflow.
type Bus interface {
	Emit(ctx context.Context, event Event) error
	On(eventType string, handler Handler) error
	Close() error
}

// WatermillBus implements Bus on a watermill gochannel. Each event type is a topic.
type WatermillBus struct {
	pubSub *gochannel.GoChannel
	logger logger.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatermillBus(log logger.ILogger) *WatermillBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &WatermillBus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermill.NewStdLogger(false, false),
		),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *WatermillBus) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(BaseEvent{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventType(), err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", event.EventType())

	if err := b.pubSub.Publish(event.EventType(), msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.EventType(), err)
	}
	return nil
}

func (b *WatermillBus) On(eventType string, handler Handler) error {
	messages, err := b.pubSub.Subscribe(b.ctx, eventType)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", eventType, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			b.deliver(eventType, msg, handler)
		}
	}()
	return nil
}

func (b *WatermillBus) deliver(eventType string, msg *message.Message, handler Handler) {
	// Ack invalid messages and failed handlers alike to prevent infinite redelivery
	defer msg.Ack()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("EventBus", "Event handler panicked", map[string]interface{}{
				"event": eventType,
				"panic": fmt.Sprint(r),
			})
		}
	}()

	var event BaseEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		b.logger.Error("EventBus", "Failed to decode event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
		return
	}

	if err := handler(msg.Context(), event); err != nil {
		b.logger.Error("EventBus", "Event handler failed", map[string]interface{}{
			"event":    eventType,
			"error":    err.Error(),
			"event_id": msg.UUID,
		})
	}
}

// Close stops all subscriptions and waits for in-flight handlers.
func (b *WatermillBus) Close() error {
	b.cancel()
	err := b.pubSub.Close()
	b.wg.Wait()
	return err
}
