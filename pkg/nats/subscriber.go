package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler processes one inbound event. A returned error naks the message for redelivery.
type EventHandler func(ctx context.Context, event events.Event) error

// ErrPermanent marks handler errors that must not be redelivered.
type ErrPermanent struct{ Err error }

func (e ErrPermanent) Error() string { return e.Err.Error() }
func (e ErrPermanent) Unwrap() error { return e.Err }

// Subscriber consumes events from JetStream with durable consumers.
type Subscriber struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	logger   logger.ILogger
	contexts []jetstream.ConsumeContext
}

func NewSubscriber(url string, log logger.ILogger) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	if err := ensureStream(context.Background(), js); err != nil {
		log.Warn("NATS", "Failed to ensure stream", map[string]interface{}{"error": err.Error()})
	}
	return &Subscriber{nc: nc, js: js, logger: log}, nil
}

// Subscribe registers a durable consumer on subject (e.g. "events.cancellation.intake").
func (s *Subscriber) Subscribe(ctx context.Context, subject, durableName string, handler EventHandler) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var event events.BaseEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			s.logger.Error("NATS", "Dropping undecodable message", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			_ = msg.Term()
			return
		}

		if err := handler(context.Background(), event); err != nil {
			var permanent ErrPermanent
			if errors.As(err, &permanent) {
				s.logger.Warn("NATS", "Handler rejected event", map[string]interface{}{
					"subject": msg.Subject(),
					"error":   err.Error(),
				})
				_ = msg.Term()
				return
			}
			s.logger.Error("NATS", "Handler failed, message will be redelivered", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	s.contexts = append(s.contexts, cc)
	s.logger.Info("NATS", "Subscribed", map[string]interface{}{
		"subject": subject,
		"durable": durableName,
	})
	return nil
}

func (s *Subscriber) Close() {
	for _, cc := range s.contexts {
		cc.Stop()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
