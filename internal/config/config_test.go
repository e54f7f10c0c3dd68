package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"go duration", "90s", 90 * time.Second},
		{"milliseconds", "1500", 1500 * time.Millisecond},
		{"garbage falls back", "soon", time.Minute},
		{"empty falls back", "", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.expected, getEnvAsDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestParseSecrets(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET_STRIPE", "whsec_env")

	secrets := parseSecrets("netflix=nf-secret, spotify=sp-secret,broken,=nothing")

	assert.Equal(t, "nf-secret", secrets["netflix"])
	assert.Equal(t, "sp-secret", secrets["spotify"])
	assert.Equal(t, "whsec_env", secrets["stripe"])
	assert.NotContains(t, secrets, "broken")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUEUE_CONCURRENCY", "8")

	cfg := Load()

	assert.Equal(t, 8, cfg.Queue.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Webhook.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Webhook.ReplayWindow)
	assert.Equal(t, 30*time.Second, cfg.Provider.APITimeout)
}
