package provider

import (
	"testing"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestSelector_Resolve(t *testing.T) {
	manual := NewManualStrategy()
	api := NewAPIStrategy(OutcomeSourceFunc(nil))
	webhook := NewWebhookStrategy(nil, "http://localhost", time.Minute)
	selector := NewSelector(manual, api, webhook)

	apiProvider := &entity.Provider{Name: "Netflix", NormalizedName: "netflix", Type: entity.MethodAPI}
	automationProvider := &entity.Provider{Name: "Hulu", NormalizedName: "hulu", Type: entity.MethodWebAutomation}

	tests := []struct {
		name      string
		requested entity.CancellationMethod
		provider  *entity.Provider
		want      entity.CancellationMethod
	}{
		{"provider type", "", apiProvider, entity.MethodAPI},
		{"explicit method wins", entity.MethodWebhook, apiProvider, entity.MethodWebhook},
		{"invalid explicit method ignored", "fax", apiProvider, entity.MethodAPI},
		{"no provider record", "", nil, entity.MethodManual},
		{"strategy not registered", "", automationProvider, entity.MethodManual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selector.Resolve(tt.requested, tt.provider))
		})
	}

	assert.Same(t, manual, selector.For(entity.MethodWebAutomation))
	assert.Equal(t, entity.MethodAPI, selector.For(entity.MethodAPI).Method())

	withBrowser := NewSelector(manual, NewWebAutomationStrategy(&fakeBrowser{}, AutomationConfig{}, logger.NewNopLogger()))
	assert.Equal(t, entity.MethodWebAutomation, withBrowser.Resolve("", automationProvider))
}

func TestRegistry(t *testing.T) {
	p := &entity.Provider{Name: "Disney+", Type: entity.MethodAPI}
	registry := NewRegistry([]*entity.Provider{p})

	found, ok := registry.ByName("disney plus")
	assert.True(t, ok)
	assert.Same(t, p, found)
	assert.Equal(t, "disney_plus", p.NormalizedName)

	_, ok = registry.ByName("unknown")
	assert.False(t, ok)
	assert.Len(t, registry.All(), 1)
}
