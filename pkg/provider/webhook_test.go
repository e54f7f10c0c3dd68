package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cancelflow-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookContext(initURL string) CancelContext {
	return CancelContext{
		Request:      &entity.CancellationRequest{ID: uuid.New()},
		Subscription: &entity.Subscription{ID: uuid.New(), UserID: uuid.New(), ExternalID: "sp-1"},
		Provider: &entity.Provider{
			Name:           "Spotify",
			NormalizedName: "spotify",
			Type:           entity.MethodWebhook,
			Settings:       entity.ProviderSettings{WebhookInitURL: initURL},
		},
	}
}

func TestWebhookStrategy_RegistersIntent(t *testing.T) {
	var intent map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&intent)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	strategy := NewWebhookStrategy(NewHTTPIntentSender(NewClient(ClientConfig{})), "https://cancelflow.test/", 5*time.Minute)
	result := strategy.Cancel(context.Background(), webhookContext(server.URL))

	require.True(t, result.Pending)
	assert.False(t, result.Success)
	assert.Nil(t, result.Error)
	assert.Regexp(t, `^wh_[0-9a-f]{32}$`, result.WebhookID)
	assert.Equal(t, result.WebhookID, intent["correlation_id"])
	assert.Equal(t, "https://cancelflow.test/api/webhooks/spotify", intent["callback_url"])
	assert.Equal(t, "sp-1", intent["subscription_id"])
}

func TestWebhookStrategy_WithoutInitURL(t *testing.T) {
	strategy := NewWebhookStrategy(nil, "http://localhost:3000", time.Minute)
	result := strategy.Cancel(context.Background(), webhookContext(""))

	assert.True(t, result.Pending)
	assert.NotEmpty(t, result.WebhookID)
	assert.Equal(t, time.Minute, strategy.Timeout())
}

func TestWebhookStrategy_IntentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	strategy := NewWebhookStrategy(NewHTTPIntentSender(NewClient(ClientConfig{})), "http://localhost", time.Minute)
	result := strategy.Cancel(context.Background(), webhookContext(server.URL))

	assert.False(t, result.Pending)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeProviderUnavailable, result.Error.Code)
}
