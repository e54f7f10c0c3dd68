package dto

import (
	"time"

	"cancelflow-be/internal/entity"

	"github.com/google/uuid"
)

// --- Submit ---

type CreateCancellationRequest struct {
	SubscriptionId uuid.UUID `json:"subscription_id" validate:"required"`
	Method         string    `json:"method" validate:"omitempty,oneof=api webhook manual web_automation"`
	MaxAttempts    int       `json:"max_attempts" validate:"omitempty,min=1,max=10"`
	Reason         string    `json:"reason" validate:"omitempty,max=500"`
}

type CreateCancellationResponse struct {
	RequestId uuid.UUID `json:"request_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// --- Status ---

type CancellationStatusResponse struct {
	RequestId        string                       `json:"request_id"`
	Status           string                       `json:"status"`
	State            string                       `json:"state"`
	Message          string                       `json:"message"`
	Method           string                       `json:"method,omitempty"`
	Attempts         int                          `json:"attempts"`
	MaxAttempts      int                          `json:"max_attempts"`
	ConfirmationCode *string                      `json:"confirmation_code,omitempty"`
	EffectiveDate    *time.Time                   `json:"effective_date,omitempty"`
	RefundAmount     *float64                     `json:"refund_amount,omitempty"`
	Instructions     *entity.ManualInstructionSet `json:"instructions,omitempty"`
	WaitingUntil     *time.Time                   `json:"waiting_until,omitempty"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
	CompletedAt      *time.Time                   `json:"completed_at,omitempty"`
}

// --- User confirmation of a manual cancellation ---

type ConfirmCancellationRequest struct {
	WasSuccessful    *bool      `json:"was_successful" validate:"required"`
	ConfirmationCode string     `json:"confirmation_code" validate:"omitempty,max=100"`
	EffectiveDate    *time.Time `json:"effective_date"`
}

type ConfirmCancellationResponse struct {
	RequestId uuid.UUID `json:"request_id"`
	Status    string    `json:"status"`
	Updated   bool      `json:"updated"`
	Message   string    `json:"message"`
}

// --- Trail ---

type CancellationLogResponse struct {
	Sequence  int64     `json:"sequence"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Intake message (NATS) ---

// CancellationIntakeMessage is the payload of an events.cancellation.intake message.
type CancellationIntakeMessage struct {
	SubscriptionId uuid.UUID `json:"subscription_id" validate:"required"`
	UserId         uuid.UUID `json:"user_id" validate:"required"`
	Email          string    `json:"email" validate:"omitempty,email"`
	Method         string    `json:"method" validate:"omitempty,oneof=api webhook manual web_automation"`
	MaxAttempts    int       `json:"max_attempts" validate:"omitempty,min=1,max=10"`
	Reason         string    `json:"reason" validate:"omitempty,max=500"`
}
