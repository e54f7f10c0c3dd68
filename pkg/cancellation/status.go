package cancellation

import (
	"fmt"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/pkg/provider"
)

// State is the caller-facing refinement of a request's status.
type State string

const (
	StateQueued           State = "queued"
	StateProcessing       State = "processing"
	StateRetrying         State = "retrying"
	StateAwaitingProvider State = "awaiting_provider"
	StateAwaitingUser     State = "awaiting_user"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// StatusView is what a caller may see about a request. It never carries an
// internal error code.
type StatusView struct {
	RequestID        string
	Status           entity.CancellationStatus
	State            State
	Message          string
	Method           entity.CancellationMethod
	Attempts         int
	MaxAttempts      int
	ConfirmationCode *string
	EffectiveDate    *time.Time
	RefundAmount     *float64
	Instructions     *entity.ManualInstructionSet
	WaitingUntil     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

func Describe(req *entity.CancellationRequest) StatusView {
	view := StatusView{
		RequestID:   req.ID.String(),
		Status:      req.Status,
		Method:      req.Method,
		Attempts:    req.Attempts,
		MaxAttempts: req.MaxAttempts,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
		CompletedAt: req.CompletedAt,
	}

	switch req.Status {
	case entity.CancellationStatusPending:
		view.State = StateQueued
		view.Message = "Your cancellation request is queued."

	case entity.CancellationStatusProcessing:
		switch {
		case req.Awaiting == entity.AwaitingWebhook:
			view.State = StateAwaitingProvider
			view.Message = "Waiting for your provider to confirm the cancellation."
			view.WaitingUntil = webhookDeadline(req)
		case req.Awaiting == entity.AwaitingUser:
			view.State = StateAwaitingUser
			view.Message = "Please follow the steps below, then confirm once you are done."
			view.Instructions = req.ManualInstructions
		case req.ErrorCode != nil:
			view.State = StateRetrying
			view.Message = fmt.Sprintf("Processing, retry %d of %d.", req.Attempts, req.MaxAttempts)
		default:
			view.State = StateProcessing
			view.Message = "Your cancellation is being processed."
		}

	case entity.CancellationStatusCompleted:
		view.State = StateCompleted
		view.Message = "Your subscription has been cancelled."
		view.ConfirmationCode = req.ConfirmationCode
		view.EffectiveDate = req.EffectiveDate
		view.RefundAmount = req.RefundAmount

	case entity.CancellationStatusFailed:
		view.State = StateFailed
		code := provider.CodeManualInterventionRequired
		if req.ErrorCode != nil {
			code = provider.Code(*req.ErrorCode)
		}
		view.Message = provider.UserMessage(code)
		view.Instructions = req.ManualInstructions
	}
	return view
}
