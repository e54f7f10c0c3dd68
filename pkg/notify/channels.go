package notify

import (
	"context"
	"fmt"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/mailer"
	"cancelflow-be/internal/websocket"
	"cancelflow-be/pkg/events"

	"github.com/google/uuid"
)

// Pusher is satisfied by *websocket.Hub.
type Pusher interface {
	Send(ctx context.Context, userID uuid.UUID, msg websocket.Message) error
}

type PushSender struct {
	hub Pusher
}

func NewPushSender(hub Pusher) *PushSender {
	return &PushSender{hub: hub}
}

func (s *PushSender) Send(ctx context.Context, n Notification) error {
	return s.hub.Send(ctx, n.To.UserID, websocket.Message{Type: n.Type, Data: n.Payload})
}

// EventSender publishes notification requests for downstream consumers.
type EventSender struct {
	publisher events.Publisher
}

func NewEventSender(publisher events.Publisher) *EventSender {
	return &EventSender{publisher: publisher}
}

func (s *EventSender) Send(ctx context.Context, n Notification) error {
	return s.publisher.Publish(ctx, events.New(events.NotificationRequested, map[string]interface{}{
		"user_id": n.To.UserID.String(),
		"type":    n.Type,
		"payload": n.Payload,
		"sent_at": n.SentAt,
	}))
}

type EmailSender struct {
	mailer  mailer.IEmailService
	baseURL string
}

// NewEmailSender links status emails to baseURL + /cancellations/<id> when baseURL is set.
func NewEmailSender(m mailer.IEmailService, baseURL string) *EmailSender {
	return &EmailSender{mailer: m, baseURL: baseURL}
}

func (s *EmailSender) Send(ctx context.Context, n Notification) error {
	if n.To.Email == "" {
		return nil
	}
	email, ok := s.render(n)
	if !ok {
		return nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.mailer.SendStatusUpdate(n.To.Email, email) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *EmailSender) render(n Notification) (mailer.StatusEmail, bool) {
	provider, _ := n.Payload["provider"].(string)
	if provider == "" {
		provider = "your subscription"
	}
	message, _ := n.Payload["message"].(string)

	var email mailer.StatusEmail
	switch n.Type {
	case events.CancellationCompleted:
		email = mailer.StatusEmail{
			Subject: "Your cancellation is complete",
			Heading: fmt.Sprintf("%s has been cancelled", provider),
		}
		if code, _ := n.Payload["confirmation_code"].(string); code != "" {
			email.Lines = append(email.Lines, "Confirmation code: "+code)
		}
		if date, _ := n.Payload["effective_date"].(string); date != "" {
			email.Lines = append(email.Lines, "Effective: "+date)
		}
	case events.CancellationManualRequired, events.CancellationFailed:
		email = mailer.StatusEmail{
			Subject: "Action needed to finish your cancellation",
			Heading: fmt.Sprintf("We could not cancel %s automatically", provider),
		}
		if message != "" {
			email.Lines = append(email.Lines, message)
		}
		if set, ok := n.Payload["instructions"].(*entity.ManualInstructionSet); ok && set != nil {
			for _, step := range set.Steps {
				email.Steps = append(email.Steps, step.Title+": "+step.Description)
			}
		}
	default:
		return email, false
	}

	if id, _ := n.Payload["request_id"].(string); id != "" && s.baseURL != "" {
		email.LinkURL = s.baseURL + "/cancellations/" + id
		email.LinkText = "View request"
	}
	return email, true
}
