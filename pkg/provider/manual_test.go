package provider

import (
	"context"
	"testing"

	"cancelflow-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualStrategy_NeverSucceeds(t *testing.T) {
	strategy := NewManualStrategy()
	result := strategy.Cancel(context.Background(), apiContext("Netflix"))

	assert.False(t, result.Success)
	assert.False(t, result.Pending)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeManualInterventionRequired, result.Error.Code)
	require.NotNil(t, result.ManualInstructions)
	assert.Equal(t, "Netflix", result.ManualInstructions.Provider)
	assert.Equal(t, "https://www.netflix.com/cancelplan", result.ManualInstructions.CancelURL)
}

func TestManualStrategy_Instructions(t *testing.T) {
	strategy := NewManualStrategy()

	t.Run("generic script for unknown provider", func(t *testing.T) {
		cc := apiContext("Acme Streaming")
		cc.Subscription.PlanName = "Gold"
		cc.Provider.Settings.Contact = entity.ContactInfo{Email: "help@acme.test"}

		set := strategy.Instructions(cc)
		assert.Contains(t, set.Title, "Acme Streaming")
		assert.Contains(t, set.Title, "Gold")
		assert.Equal(t, "help@acme.test", set.Contact.Email)
		assert.NotEmpty(t, set.Prerequisites)
		assert.NotEmpty(t, set.CommonIssues)
		for i, step := range set.Steps {
			assert.Equal(t, i+1, step.Order)
		}
	})

	t.Run("configured template wins", func(t *testing.T) {
		cc := apiContext("Netflix")
		cc.Provider.Settings.Instructions = &entity.ManualInstructionSet{
			Title: "Custom",
			Steps: []entity.InstructionStep{{Title: "Call us"}},
		}

		set := strategy.Instructions(cc)
		assert.Equal(t, "Custom", set.Title)
		require.Len(t, set.Steps, 1)
		assert.Equal(t, 1, set.Steps[0].Order)
		assert.Zero(t, cc.Provider.Settings.Instructions.Steps[0].Order, "template is not mutated")
	})

	t.Run("no provider record", func(t *testing.T) {
		cc := apiContext("Netflix")
		cc.Provider = nil

		set := strategy.Instructions(cc)
		assert.Equal(t, "your provider", set.Provider)
		assert.NotEmpty(t, set.Steps)
	})
}
