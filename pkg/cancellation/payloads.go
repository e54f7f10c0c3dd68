package cancellation

import "cancelflow-be/pkg/webhook"

// Job types handled by the workflow.
const (
	JobValidate        = "cancellation.validate"
	JobAPI             = "cancellation.api"
	JobWebhook         = "cancellation.webhook"
	JobManual          = "cancellation.manual"
	JobWebAutomation   = "cancellation.web_automation"
	JobWebhookTimeout  = "cancellation.webhook_timeout"
	JobWebhookReceived = "cancellation.webhook_received"
	JobConfirm         = "cancellation.confirm"
	JobManualTimeout   = "cancellation.manual_timeout"
	JobAbandon         = "cancellation.abandon"
)

type ValidatePayload struct {
	RequestID string `json:"request_id"`
}

func (ValidatePayload) JobType() string { return JobValidate }

type APIPayload struct {
	RequestID string `json:"request_id"`
}

func (APIPayload) JobType() string { return JobAPI }

type WebhookPayload struct {
	RequestID string `json:"request_id"`
}

func (WebhookPayload) JobType() string { return JobWebhook }

type ManualPayload struct {
	RequestID string `json:"request_id"`
}

func (ManualPayload) JobType() string { return JobManual }

type WebAutomationPayload struct {
	RequestID string `json:"request_id"`
}

func (WebAutomationPayload) JobType() string { return JobWebAutomation }

// WebhookTimeoutPayload carries the correlation id it was scheduled for, so a
// timeout left over from an earlier attempt cannot fail a newer one.
type WebhookTimeoutPayload struct {
	RequestID string `json:"request_id"`
	WebhookID string `json:"webhook_id"`
}

func (WebhookTimeoutPayload) JobType() string { return JobWebhookTimeout }

type WebhookReceivedPayload struct {
	Event webhook.ExtractedData `json:"event"`
}

func (WebhookReceivedPayload) JobType() string { return JobWebhookReceived }

type ConfirmPayload struct {
	RequestID string `json:"request_id"`
}

func (ConfirmPayload) JobType() string { return JobConfirm }

type ManualTimeoutPayload struct {
	RequestID string `json:"request_id"`
}

func (ManualTimeoutPayload) JobType() string { return JobManualTimeout }

// AbandonPayload fails a request whose job the queue gave up on. DeadJob names
// the job type that died and decides which request state may be abandoned.
type AbandonPayload struct {
	RequestID string `json:"request_id"`
	DeadJob   string `json:"dead_job"`
	WebhookID string `json:"webhook_id,omitempty"`
	Cause     string `json:"cause,omitempty"`
	TimedOut  bool   `json:"timed_out,omitempty"`
}

func (AbandonPayload) JobType() string { return JobAbandon }
