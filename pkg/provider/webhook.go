package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cancelflow-be/internal/entity"

	"github.com/google/uuid"
)

// IntentSender tells a provider that we expect a cancellation webhook.
type IntentSender interface {
	SendIntent(ctx context.Context, provider, url string, intent map[string]interface{}) error
}

// WebhookStrategy registers intent and returns pending. Completion arrives via ingestion.
type WebhookStrategy struct {
	sender      IntentSender
	callbackURL string
	timeout     time.Duration
	now         func() time.Time
}

// NewWebhookStrategy takes the public base URL used to build callback addresses
// and how long a request may wait for its webhook.
func NewWebhookStrategy(sender IntentSender, baseURL string, timeout time.Duration) *WebhookStrategy {
	return &WebhookStrategy{
		sender:      sender,
		callbackURL: strings.TrimRight(baseURL, "/") + "/api/webhooks/",
		timeout:     timeout,
		now:         time.Now,
	}
}

func (s *WebhookStrategy) Method() entity.CancellationMethod {
	return entity.MethodWebhook
}

// Timeout is the wait window for the confirming webhook.
func (s *WebhookStrategy) Timeout() time.Duration {
	return s.timeout
}

func (s *WebhookStrategy) Cancel(ctx context.Context, cc CancelContext) Result {
	correlationID := "wh_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	steps := []StepLog{{Step: "register_intent", Status: "ok", Message: correlationID}}

	if cc.Provider != nil && cc.Provider.Settings.WebhookInitURL != "" && s.sender != nil {
		intent := map[string]interface{}{
			"correlation_id": correlationID,
			"callback_url":   s.callbackURL + cc.Provider.NormalizedName,
			"expires_at":     s.now().Add(s.timeout).UTC().Format(time.RFC3339),
		}
		if cc.Subscription != nil {
			intent["subscription_id"] = cc.Subscription.ExternalID
			intent["user_id"] = cc.Subscription.UserID.String()
		}

		started := s.now()
		if err := s.sender.SendIntent(ctx, cc.Provider.NormalizedName, cc.Provider.Settings.WebhookInitURL, intent); err != nil {
			var perr *Error
			if !errors.As(err, &perr) {
				perr = NewError(CodeNetworkError, err.Error(), nil)
			}
			steps = append(steps, StepLog{Step: "send_intent", Status: "failed", Message: err.Error(), DurationMs: s.now().Sub(started).Milliseconds()})
			return Result{Error: perr, Steps: steps}
		}
		steps = append(steps, StepLog{Step: "send_intent", Status: "ok", DurationMs: s.now().Sub(started).Milliseconds()})
	}

	return Result{
		Pending:   true,
		WebhookID: correlationID,
		Steps:     steps,
		Metadata:  map[string]interface{}{"correlation_id": correlationID},
	}
}

// HTTPIntentSender posts the intent through the shared provider Client.
type HTTPIntentSender struct {
	client *Client
}

func NewHTTPIntentSender(client *Client) *HTTPIntentSender {
	return &HTTPIntentSender{client: client}
}

func (h *HTTPIntentSender) SendIntent(ctx context.Context, provider, url string, intent map[string]interface{}) error {
	body, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return NewError(CodeUnsupportedOperation, fmt.Sprintf("invalid webhook init url: %v", err), nil)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(ctx, provider, req)
	if err != nil {
		out := transportOutcome(err)
		return NewError(out.Outcome.CodeFor(), out.Message, nil)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewError(CodeAPIRateLimit, resp.Status, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewError(CodeAuthFailed, resp.Status, nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return NewError(CodeProviderUnavailable, resp.Status, nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return NewError(CodeProviderError, resp.Status, nil)
	}
	return nil
}
