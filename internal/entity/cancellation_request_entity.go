package entity

import (
	"time"

	"github.com/google/uuid"
)

// CancellationMethod is the mechanism used to cancel a subscription.
// A provider's type is always one of these.
type CancellationMethod string

const (
	MethodAPI           CancellationMethod = "api"
	MethodWebhook       CancellationMethod = "webhook"
	MethodManual        CancellationMethod = "manual"
	MethodWebAutomation CancellationMethod = "web_automation"
)

func (m CancellationMethod) IsValid() bool {
	switch m {
	case MethodAPI, MethodWebhook, MethodManual, MethodWebAutomation:
		return true
	}
	return false
}

// CancellationStatus is the lifecycle state of a cancellation request
type CancellationStatus string

const (
	CancellationStatusPending    CancellationStatus = "pending"
	CancellationStatusProcessing CancellationStatus = "processing"
	CancellationStatusCompleted  CancellationStatus = "completed"
	CancellationStatusFailed     CancellationStatus = "failed"
)

// ActiveCancellationStatuses are the statuses covered by the one-active-request-per-subscription rule.
var ActiveCancellationStatuses = []CancellationStatus{CancellationStatusPending, CancellationStatusProcessing}

func (s CancellationStatus) IsActive() bool {
	return s == CancellationStatusPending || s == CancellationStatusProcessing
}

func (s CancellationStatus) IsTerminal() bool {
	return s == CancellationStatusCompleted || s == CancellationStatusFailed
}

// CanTransitionTo reports whether next is a legal forward move.
// failed -> pending is the explicit retry path and is only allowed through Retry.
func (s CancellationStatus) CanTransitionTo(next CancellationStatus) bool {
	switch s {
	case CancellationStatusPending:
		return next == CancellationStatusProcessing || next == CancellationStatusFailed
	case CancellationStatusProcessing:
		return next == CancellationStatusCompleted || next == CancellationStatusFailed
	}
	return false
}

// AwaitingState marks what a processing request is parked on.
type AwaitingState string

const (
	AwaitingNone    AwaitingState = ""
	AwaitingWebhook AwaitingState = "webhook"
	AwaitingUser    AwaitingState = "user"
)

type CancellationRequest struct {
	ID                 uuid.UUID
	SubscriptionID     uuid.UUID
	UserID             uuid.UUID
	Method             CancellationMethod
	Status             CancellationStatus
	Reason             string
	ContactEmail       string // where email notifications go, captured at enqueue
	Attempts           int
	MaxAttempts        int
	ConfirmationCode   *string
	EffectiveDate      *time.Time
	RefundAmount       *float64 // negative means a fee was charged
	ErrorCode          *string
	ErrorMessage       *string
	ErrorDetails       map[string]interface{}
	ManualInstructions *ManualInstructionSet
	WebhookID          *string
	WebhookExpiresAt   *time.Time
	Awaiting           AwaitingState
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// ManualInstructionSet is the structured fallback handed to the user
// when the cancellation cannot be automated.
type ManualInstructionSet struct {
	Title            string            `json:"title"`
	Provider         string            `json:"provider"`
	Steps            []InstructionStep `json:"steps"`
	Prerequisites    []string          `json:"prerequisites"`
	Contact          ContactInfo       `json:"contact"`
	CommonIssues     []CommonIssue     `json:"common_issues"`
	EstimatedMinutes int               `json:"estimated_minutes"`
	CancelURL        string            `json:"cancel_url,omitempty"`
}

type InstructionStep struct {
	Order       int    `json:"order"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	ChatURL string `json:"chat_url,omitempty"`
	Hours   string `json:"hours,omitempty"`
}

type CommonIssue struct {
	Issue    string `json:"issue"`
	Solution string `json:"solution"`
}
