package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the dotted event name (e.g., "cancellation.completed").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the concrete event carried on the bus.
type BaseEvent struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now().UTC()}
}

const (
	CancellationRequested      = "cancellation.requested"
	CancellationProcessing     = "cancellation.processing"
	CancellationCompleted      = "cancellation.completed"
	CancellationFailed         = "cancellation.failed"
	CancellationManualRequired = "cancellation.manual_required"
	CancellationRetried        = "cancellation.retried"
	WebhookReceived            = "webhook.received"
	AnalyticsTracked           = "analytics.tracked"
	NotificationRequested      = "notification.requested"
)
