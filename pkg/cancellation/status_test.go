package cancellation_test

import (
	"testing"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/pkg/cancellation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestDescribe(t *testing.T) {
	expires := time.Now().Add(5 * time.Minute)
	instructions := &entity.ManualInstructionSet{Title: "Cancel your Acme subscription"}

	tests := []struct {
		name         string
		req          entity.CancellationRequest
		state        cancellation.State
		hasDeadline  bool
		instructions bool
		code         bool
	}{
		{
			name:  "pending is queued",
			req:   entity.CancellationRequest{Status: entity.CancellationStatusPending},
			state: cancellation.StateQueued,
		},
		{
			name:  "processing",
			req:   entity.CancellationRequest{Status: entity.CancellationStatusProcessing},
			state: cancellation.StateProcessing,
		},
		{
			name:  "processing after a failed attempt",
			req:   entity.CancellationRequest{Status: entity.CancellationStatusProcessing, Attempts: 1, MaxAttempts: 3, ErrorCode: strPtr("PROVIDER_UNAVAILABLE")},
			state: cancellation.StateRetrying,
		},
		{
			name:        "waiting for a webhook",
			req:         entity.CancellationRequest{Status: entity.CancellationStatusProcessing, Awaiting: entity.AwaitingWebhook, WebhookExpiresAt: &expires},
			state:       cancellation.StateAwaitingProvider,
			hasDeadline: true,
		},
		{
			name:         "waiting for the user",
			req:          entity.CancellationRequest{Status: entity.CancellationStatusProcessing, Awaiting: entity.AwaitingUser, ManualInstructions: instructions},
			state:        cancellation.StateAwaitingUser,
			instructions: true,
		},
		{
			name:  "completed",
			req:   entity.CancellationRequest{Status: entity.CancellationStatusCompleted, ConfirmationCode: strPtr("API-1-ABCDEFGH")},
			state: cancellation.StateCompleted,
			code:  true,
		},
		{
			name:         "failed",
			req:          entity.CancellationRequest{Status: entity.CancellationStatusFailed, ErrorCode: strPtr("TWO_FACTOR_REQUIRED"), ManualInstructions: instructions},
			state:        cancellation.StateFailed,
			instructions: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.ID = uuid.New()
			view := cancellation.Describe(&tt.req)

			assert.Equal(t, tt.state, view.State)
			assert.Equal(t, tt.req.ID.String(), view.RequestID)
			assert.NotEmpty(t, view.Message)
			assert.Equal(t, tt.hasDeadline, view.WaitingUntil != nil)
			assert.Equal(t, tt.instructions, view.Instructions != nil)
			assert.Equal(t, tt.code, view.ConfirmationCode != nil)
			if tt.req.ErrorCode != nil {
				assert.NotContains(t, view.Message, *tt.req.ErrorCode)
			}
		})
	}
}
