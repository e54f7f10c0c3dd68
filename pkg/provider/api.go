package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cancelflow-be/internal/entity"
)

// apiProfile describes how a known provider's cancellation API is called and read.
type apiProfile struct {
	Name            string
	DefaultEndpoint string
	// Path is appended to the endpoint; %s is the provider's subscription id.
	Path string
	// EffectiveAtPeriodEnd means the cancellation takes effect when the paid period ends.
	EffectiveAtPeriodEnd bool
	// Refunds reports whether a refund amount from the response is honoured.
	Refunds bool
	// Overrides remaps outcomes whose meaning differs for this provider.
	Overrides map[Outcome]Code
	Body      func(cc CancelContext) map[string]interface{}
}

func defaultBody(cc CancelContext) map[string]interface{} {
	body := map[string]interface{}{
		"request_id": cc.Request.ID.String(),
		"reason":     cc.Request.Reason,
	}
	if cc.Subscription != nil {
		body["subscription_id"] = cc.Subscription.ExternalID
		body["user_id"] = cc.Subscription.UserID.String()
	}
	return body
}

func builtinProfiles() map[string]apiProfile {
	return map[string]apiProfile{
		"netflix": {
			Name:                 "netflix",
			DefaultEndpoint:      "https://api.netflix.com/v1",
			Path:                 "/memberships/%s/cancel",
			EffectiveAtPeriodEnd: true,
			Overrides: map[Outcome]Code{
				// A login shared by several billed accounts cannot be resolved remotely
				OutcomeMultipleAccounts: CodeManualInterventionRequired,
			},
		},
		"spotify": {
			Name:                 "spotify",
			DefaultEndpoint:      "https://api.spotify.com/v1",
			Path:                 "/me/subscriptions/%s/cancel",
			EffectiveAtPeriodEnd: true,
			Body: func(cc CancelContext) map[string]interface{} {
				body := defaultBody(cc)
				body["decline_retention_offer"] = true
				return body
			},
		},
		"hulu": {
			Name:                 "hulu",
			DefaultEndpoint:      "https://api.hulu.com/v1",
			Path:                 "/subscriptions/%s/cancellation",
			EffectiveAtPeriodEnd: true,
			Refunds:              true,
		},
		"disney_plus": {
			Name:                 "disney_plus",
			DefaultEndpoint:      "https://api.disneyplus.com/v1",
			Path:                 "/accounts/subscriptions/%s/cancel",
			EffectiveAtPeriodEnd: true,
			Refunds:              true,
			Overrides: map[Outcome]Code{
				OutcomeSessionExpired: CodeTwoFactorRequired,
			},
		},
	}
}

// APIStrategy cancels through a provider API. Known providers use their profile;
// anything else is a generic POST to the configured apiEndpoint.
type APIStrategy struct {
	source   OutcomeSource
	profiles map[string]apiProfile
	now      func() time.Time
}

func NewAPIStrategy(source OutcomeSource) *APIStrategy {
	return &APIStrategy{source: source, profiles: builtinProfiles(), now: time.Now}
}

// WithClock replaces the time source.
func (s *APIStrategy) WithClock(now func() time.Time) *APIStrategy {
	s.now = now
	return s
}

func (s *APIStrategy) Method() entity.CancellationMethod {
	return entity.MethodAPI
}

// Supports reports whether a provider-specific implementation exists.
func (s *APIStrategy) Supports(normalizedName string) bool {
	_, ok := s.profiles[normalizedName]
	return ok
}

func (s *APIStrategy) Cancel(ctx context.Context, cc CancelContext) Result {
	if cc.Provider == nil {
		return Failed(NewError(CodeUnsupportedOperation, "no provider record for this subscription", nil))
	}

	profile, known := s.profiles[cc.Provider.NormalizedName]
	if !known {
		profile = apiProfile{Name: cc.Provider.NormalizedName}
	}

	endpoint := strings.TrimRight(cc.Provider.Settings.APIEndpoint, "/")
	if endpoint == "" {
		endpoint = profile.DefaultEndpoint
	}
	if endpoint == "" {
		return Failed(NewError(CodeUnsupportedOperation,
			fmt.Sprintf("%s has no cancellation API configured", cc.ProviderName()), nil))
	}

	url := endpoint
	if profile.Path != "" {
		externalID := ""
		if cc.Subscription != nil {
			externalID = cc.Subscription.ExternalID
		}
		url += fmt.Sprintf(profile.Path, externalID)
	}

	bodyFn := profile.Body
	if bodyFn == nil {
		bodyFn = defaultBody
	}

	resp := s.source.Cancel(ctx, APICall{
		Provider:       profile.Name,
		URL:            url,
		CredentialsRef: cc.Provider.Settings.CredentialsRef,
		Body:           bodyFn(cc),
	})

	step := StepLog{Step: "api_call", Status: string(resp.Outcome), Message: resp.Message}
	if resp.Outcome != OutcomeSuccess {
		code := resp.Outcome.CodeFor()
		if override, ok := profile.Overrides[resp.Outcome]; ok {
			code = override
		}
		details := map[string]interface{}{
			"outcome":     string(resp.Outcome),
			"status_code": resp.StatusCode,
			"provider":    profile.Name,
		}
		if resp.RetryAfter > 0 {
			details["retry_after_ms"] = resp.RetryAfter.Milliseconds()
		}
		message := resp.Message
		if message == "" {
			message = fmt.Sprintf("%s API returned %s", cc.ProviderName(), resp.Outcome)
		}
		return Result{Error: NewError(code, message, details), Steps: []StepLog{step}}
	}

	now := s.now()
	result := Result{
		Success:          true,
		ConfirmationCode: ConfirmationCode("API", now),
		EffectiveDate:    resp.EffectiveDate,
		Steps:            []StepLog{step},
		Metadata:         map[string]interface{}{"provider": profile.Name},
	}
	if resp.ConfirmationCode != "" {
		result.Metadata["provider_reference"] = resp.ConfirmationCode
	}

	if result.EffectiveDate == nil {
		effective := now.UTC()
		if profile.EffectiveAtPeriodEnd && cc.Subscription != nil && cc.Subscription.CurrentPeriodEnd != nil {
			effective = *cc.Subscription.CurrentPeriodEnd
		}
		result.EffectiveDate = &effective
	}

	if resp.RefundAmount != nil && (profile.Refunds || cc.Provider.SupportsRefunds) {
		refund := *resp.RefundAmount
		result.RefundAmount = &refund
	}
	return result
}
