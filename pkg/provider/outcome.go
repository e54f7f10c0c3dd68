package provider

import (
	"context"
	"time"
)

// Outcome is what a provider API said about a cancellation call.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeMultipleAccounts   Outcome = "multiple_accounts"
	OutcomeTwoFactorRequired  Outcome = "two_factor_required"
	OutcomeRetentionOffer     Outcome = "retention_offer"
	OutcomeBillingRestriction Outcome = "billing_restriction"
	OutcomeAuthFailed         Outcome = "auth_failed"
	OutcomeInvalidCredentials Outcome = "invalid_credentials"
	OutcomeSessionExpired     Outcome = "session_expired"
	OutcomeRateLimited        Outcome = "rate_limited"
	OutcomeUnavailable        Outcome = "unavailable"
	OutcomeNetworkError       Outcome = "network_error"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeUnsupported        Outcome = "unsupported"
	OutcomeProviderError      Outcome = "provider_error"
)

var outcomeCodes = map[Outcome]Code{
	OutcomeMultipleAccounts:   CodeManualInterventionRequired,
	OutcomeTwoFactorRequired:  CodeTwoFactorRequired,
	OutcomeRetentionOffer:     CodeRetentionOffer,
	OutcomeBillingRestriction: CodeBillingCycleRestriction,
	OutcomeAuthFailed:         CodeAuthFailed,
	OutcomeInvalidCredentials: CodeInvalidCredentials,
	OutcomeSessionExpired:     CodeSessionExpired,
	OutcomeRateLimited:        CodeAPIRateLimit,
	OutcomeUnavailable:        CodeProviderUnavailable,
	OutcomeNetworkError:       CodeNetworkError,
	OutcomeTimeout:            CodeTimeout,
	OutcomeUnsupported:        CodeUnsupportedOperation,
	OutcomeProviderError:      CodeProviderError,
}

// CodeFor maps an outcome to its canonical code. Unknown outcomes are provider errors.
func (o Outcome) CodeFor() Code {
	if code, ok := outcomeCodes[o]; ok {
		return code
	}
	return CodeProviderError
}

// APICall is one outbound cancellation call.
type APICall struct {
	Provider       string
	URL            string
	CredentialsRef string
	Body           map[string]interface{}
}

// APIResponse is the interpreted provider response.
type APIResponse struct {
	Outcome          Outcome
	StatusCode       int
	Message          string
	ConfirmationCode string
	EffectiveDate    *time.Time
	RefundAmount     *float64
	RetryAfter       time.Duration
}

// OutcomeSource performs the provider call. Production uses HTTPOutcomeSource;
// tests inject scripted outcomes.
type OutcomeSource interface {
	Cancel(ctx context.Context, call APICall) APIResponse
}

// OutcomeSourceFunc adapts a function to OutcomeSource.
type OutcomeSourceFunc func(ctx context.Context, call APICall) APIResponse

func (f OutcomeSourceFunc) Cancel(ctx context.Context, call APICall) APIResponse {
	return f(ctx, call)
}
