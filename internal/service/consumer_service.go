package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cancelflow-be/internal/dto"
	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/internal/pkg/serverutils"
	"cancelflow-be/pkg/cancellation"
	"cancelflow-be/pkg/events"
	pktNats "cancelflow-be/pkg/nats"
)

const (
	IntakeSubject = pktNats.SubjectPrefix + "cancellation.intake"
	IntakeDurable = "cancellation-intake"
)

// IntakeSubscriber is satisfied by *nats.Subscriber.
type IntakeSubscriber interface {
	Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
	Handle(ctx context.Context, event events.Event) error
}

// consumerService turns intake messages from other systems into cancellation requests.
type consumerService struct {
	subscriber   IntakeSubscriber
	cancellation ICancellationService
	logger       logger.ILogger
}

func NewConsumerService(subscriber IntakeSubscriber, cancellation ICancellationService, log logger.ILogger) IConsumerService {
	return &consumerService{
		subscriber:   subscriber,
		cancellation: cancellation,
		logger:       log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	return cs.subscriber.Subscribe(ctx, IntakeSubject, IntakeDurable, cs.Handle)
}

// Handle processes one intake event. Malformed or unacceptable messages are
// terminated; store errors are returned so the message is redelivered.
func (cs *consumerService) Handle(ctx context.Context, event events.Event) error {
	raw, err := json.Marshal(event.Payload())
	if err != nil {
		return pktNats.ErrPermanent{Err: err}
	}

	var msg dto.CancellationIntakeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		cs.logger.Warn("INTAKE", "Dropping undecodable intake message", map[string]interface{}{"error": err.Error()})
		return pktNats.ErrPermanent{Err: err}
	}
	if err := serverutils.ValidateRequest(msg); err != nil {
		cs.logger.Warn("INTAKE", "Dropping invalid intake message", map[string]interface{}{"error": err.Error()})
		return pktNats.ErrPermanent{Err: err}
	}

	res, err := cs.cancellation.EnqueueCancellation(ctx, msg.UserId, msg.Email, &dto.CreateCancellationRequest{
		SubscriptionId: msg.SubscriptionId,
		Method:         msg.Method,
		MaxAttempts:    msg.MaxAttempts,
		Reason:         msg.Reason,
	})
	switch {
	case errors.Is(err, ErrSubscriptionNotFound), errors.Is(err, cancellation.ErrActiveRequestExists):
		cs.logger.Info("INTAKE", "Intake message rejected", map[string]interface{}{
			"subscription_id": msg.SubscriptionId.String(),
			"reason":          err.Error(),
		})
		return pktNats.ErrPermanent{Err: err}
	case err != nil:
		return fmt.Errorf("enqueue cancellation: %w", err)
	}

	cs.logger.Info("INTAKE", "Intake message accepted", map[string]interface{}{
		"subscription_id": msg.SubscriptionId.String(),
		"request_id":      res.RequestId.String(),
	})
	return nil
}
