package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// CredentialResolver turns a credentialsRef from provider settings into a secret.
type CredentialResolver func(ref string) string

// EnvCredentials resolves refs like "env:NETFLIX_API_KEY" (or a bare variable name).
func EnvCredentials(ref string) string {
	return os.Getenv(strings.TrimPrefix(ref, "env:"))
}

// HTTPOutcomeSource calls the real provider API.
type HTTPOutcomeSource struct {
	client      *Client
	credentials CredentialResolver
	header      string
}

func NewHTTPOutcomeSource(client *Client, credentials CredentialResolver, header string) *HTTPOutcomeSource {
	if credentials == nil {
		credentials = EnvCredentials
	}
	if header == "" {
		header = "Authorization"
	}
	return &HTTPOutcomeSource{client: client, credentials: credentials, header: header}
}

type apiResponseBody struct {
	Status           string   `json:"status"`
	Outcome          string   `json:"outcome"`
	Error            string   `json:"error"`
	Message          string   `json:"message"`
	ConfirmationCode string   `json:"confirmation_code"`
	EffectiveDate    string   `json:"effective_date"`
	RefundAmount     *float64 `json:"refund_amount"`
}

func (s *HTTPOutcomeSource) Cancel(ctx context.Context, call APICall) APIResponse {
	body, err := json.Marshal(call.Body)
	if err != nil {
		return APIResponse{Outcome: OutcomeProviderError, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.URL, bytes.NewReader(body))
	if err != nil {
		return APIResponse{Outcome: OutcomeUnsupported, Message: fmt.Sprintf("invalid endpoint: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if call.CredentialsRef != "" {
		if secret := s.credentials(call.CredentialsRef); secret != "" {
			if s.header == "Authorization" {
				secret = "Bearer " + secret
			}
			req.Header.Set(s.header, secret)
		}
	}

	resp, err := s.client.Do(ctx, call.Provider, req)
	if err != nil {
		return transportOutcome(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed apiResponseBody
	_ = json.Unmarshal(raw, &parsed)

	out := APIResponse{StatusCode: resp.StatusCode, Message: parsed.Message}
	if out.Message == "" {
		out.Message = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		out.Outcome = OutcomeRateLimited
		out.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusUnauthorized:
		out.Outcome = OutcomeAuthFailed
	case resp.StatusCode == http.StatusForbidden:
		out.Outcome = OutcomeInvalidCredentials
	case resp.StatusCode == 419 || resp.StatusCode == 440:
		out.Outcome = OutcomeSessionExpired
	case resp.StatusCode == http.StatusNotImplemented || resp.StatusCode == http.StatusMethodNotAllowed:
		out.Outcome = OutcomeUnsupported
	case resp.StatusCode >= http.StatusInternalServerError:
		out.Outcome = OutcomeUnavailable
	case resp.StatusCode >= http.StatusBadRequest:
		out.Outcome = bodyOutcome(parsed, OutcomeProviderError)
	default:
		out.Outcome = bodyOutcome(parsed, OutcomeSuccess)
	}

	if out.Outcome == OutcomeSuccess {
		out.ConfirmationCode = parsed.ConfirmationCode
		out.RefundAmount = parsed.RefundAmount
		if parsed.EffectiveDate != "" {
			if t, err := parseDate(parsed.EffectiveDate); err == nil {
				out.EffectiveDate = &t
			}
		}
	}
	return out
}

// bodyOutcome reads an explicit outcome from the response body, e.g. a 200 that
// actually reports a retention offer.
func bodyOutcome(body apiResponseBody, fallback Outcome) Outcome {
	for _, candidate := range []string{body.Outcome, body.Error, body.Status} {
		switch Outcome(strings.ToLower(candidate)) {
		case OutcomeSuccess, OutcomeMultipleAccounts, OutcomeTwoFactorRequired, OutcomeRetentionOffer,
			OutcomeBillingRestriction, OutcomeAuthFailed, OutcomeInvalidCredentials, OutcomeSessionExpired,
			OutcomeRateLimited, OutcomeUnavailable, OutcomeUnsupported, OutcomeProviderError:
			return Outcome(strings.ToLower(candidate))
		}
		switch strings.ToLower(candidate) {
		case "cancelled", "canceled", "ok":
			return OutcomeSuccess
		}
	}
	return fallback
}

func transportOutcome(err error) APIResponse {
	var netErr net.Error
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return APIResponse{Outcome: OutcomeUnavailable, Message: "circuit open: " + err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return APIResponse{Outcome: OutcomeTimeout, Message: err.Error()}
	case errors.As(err, &netErr) && netErr.Timeout():
		return APIResponse{Outcome: OutcomeTimeout, Message: err.Error()}
	}
	return APIResponse{Outcome: OutcomeNetworkError, Message: err.Error()}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
