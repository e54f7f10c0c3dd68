package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(cfg ClientConfig) *HTTPOutcomeSource {
	return NewHTTPOutcomeSource(NewClient(cfg), func(ref string) string { return "secret-" + ref }, "")
}

func TestHTTPOutcomeSource_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]interface{}
		want   Outcome
	}{
		{"ok", http.StatusOK, map[string]interface{}{"status": "cancelled"}, OutcomeSuccess},
		{"ok with retention offer", http.StatusOK, map[string]interface{}{"outcome": "retention_offer"}, OutcomeRetentionOffer},
		{"2fa in 4xx body", http.StatusConflict, map[string]interface{}{"error": "two_factor_required"}, OutcomeTwoFactorRequired},
		{"unauthorized", http.StatusUnauthorized, nil, OutcomeAuthFailed},
		{"forbidden", http.StatusForbidden, nil, OutcomeInvalidCredentials},
		{"rate limited", http.StatusTooManyRequests, nil, OutcomeRateLimited},
		{"not implemented", http.StatusNotImplemented, nil, OutcomeUnsupported},
		{"server error", http.StatusBadGateway, nil, OutcomeUnavailable},
		{"plain 4xx", http.StatusBadRequest, nil, OutcomeProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(tt.status)
				if tt.body != nil {
					_ = json.NewEncoder(w).Encode(tt.body)
				}
			}))
			defer server.Close()

			resp := newTestSource(ClientConfig{BreakerFailures: 100}).Cancel(context.Background(), APICall{Provider: "p", URL: server.URL})
			assert.Equal(t, tt.want, resp.Outcome)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.want == OutcomeRateLimited {
				assert.Equal(t, 3*time.Second, resp.RetryAfter)
			}
		})
	}
}

func TestHTTPOutcomeSource_SendsCredentialsAndParsesSuccess(t *testing.T) {
	var auth string
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":            "cancelled",
			"confirmation_code": "NF-123",
			"effective_date":    "2026-12-01",
			"refund_amount":     -2.5,
		})
	}))
	defer server.Close()

	resp := newTestSource(ClientConfig{}).Cancel(context.Background(), APICall{
		Provider:       "netflix",
		URL:            server.URL,
		CredentialsRef: "NETFLIX_KEY",
		Body:           map[string]interface{}{"subscription_id": "sub-1"},
	})

	require.Equal(t, OutcomeSuccess, resp.Outcome)
	assert.Equal(t, "Bearer secret-NETFLIX_KEY", auth)
	assert.Equal(t, "sub-1", body["subscription_id"])
	assert.Equal(t, "NF-123", resp.ConfirmationCode)
	require.NotNil(t, resp.EffectiveDate)
	assert.Equal(t, 2026, resp.EffectiveDate.Year())
	require.NotNil(t, resp.RefundAmount)
	assert.InDelta(t, -2.5, *resp.RefundAmount, 0.001)
}

func TestHTTPOutcomeSource_TimeoutAndNetworkErrors(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	resp := newTestSource(ClientConfig{Timeout: 100 * time.Millisecond}).Cancel(context.Background(), APICall{Provider: "slow", URL: slow.URL})
	assert.Equal(t, OutcomeTimeout, resp.Outcome)

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := closed.URL
	closed.Close()

	resp = newTestSource(ClientConfig{}).Cancel(context.Background(), APICall{Provider: "gone", URL: url})
	assert.Equal(t, OutcomeNetworkError, resp.Outcome)
}

func TestHTTPOutcomeSource_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	source := newTestSource(ClientConfig{BreakerFailures: 2, BreakerOpenFor: time.Minute})
	for i := 0; i < 2; i++ {
		resp := source.Cancel(context.Background(), APICall{Provider: "flaky", URL: server.URL})
		assert.Equal(t, OutcomeUnavailable, resp.Outcome)
	}

	resp := source.Cancel(context.Background(), APICall{Provider: "flaky", URL: server.URL})
	assert.Equal(t, OutcomeUnavailable, resp.Outcome)
	assert.Contains(t, resp.Message, "circuit open")
	assert.EqualValues(t, 2, hits.Load())
}
