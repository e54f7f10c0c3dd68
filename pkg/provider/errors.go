package provider

import "fmt"

// Code is a canonical cancellation failure code.
type Code string

const (
	CodeAuthFailed                 Code = "AUTH_FAILED"
	CodeInvalidCredentials         Code = "INVALID_CREDENTIALS"
	CodeTwoFactorRequired          Code = "TWO_FACTOR_REQUIRED"
	CodeSessionExpired             Code = "SESSION_EXPIRED"
	CodeProviderUnavailable        Code = "PROVIDER_UNAVAILABLE"
	CodeProviderError              Code = "PROVIDER_ERROR"
	CodeAPIRateLimit               Code = "API_RATE_LIMIT"
	CodeUnsupportedOperation       Code = "UNSUPPORTED_OPERATION"
	CodeElementNotFound            Code = "ELEMENT_NOT_FOUND"
	CodeTimeout                    Code = "TIMEOUT"
	CodeNavigationFailed           Code = "NAVIGATION_FAILED"
	CodeCaptchaDetected            Code = "CAPTCHA_DETECTED"
	CodeRetentionOffer             Code = "RETENTION_OFFER"
	CodeBillingCycleRestriction    Code = "BILLING_CYCLE_RESTRICTION"
	CodeWebhookTimeout             Code = "WEBHOOK_TIMEOUT"
	CodeNetworkError               Code = "NETWORK_ERROR"
	CodeManualInterventionRequired Code = "MANUAL_INTERVENTION_REQUIRED"

	// Workflow validation codes
	CodeAlreadyCancelled     Code = "ALREADY_CANCELLED"
	CodeDuplicateRequest     Code = "DUPLICATE_REQUEST"
	CodeSubscriptionNotFound Code = "SUBSCRIPTION_NOT_FOUND"
)

// Error is a classified strategy failure.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code Code, message string, details map[string]interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Disposition is what the workflow does with a failure.
type Disposition int

const (
	DispositionTerminal Disposition = iota
	DispositionRetry
	DispositionManual
)

func (d Disposition) String() string {
	switch d {
	case DispositionRetry:
		return "retry"
	case DispositionManual:
		return "manual"
	}
	return "terminal"
}

// Classify maps a code to its propagation policy. Unknown codes are terminal.
func Classify(code Code) Disposition {
	switch code {
	case CodeAPIRateLimit, CodeNetworkError, CodeProviderUnavailable, CodeProviderError,
		CodeTimeout, CodeNavigationFailed, CodeElementNotFound:
		return DispositionRetry
	case CodeTwoFactorRequired, CodeRetentionOffer, CodeBillingCycleRestriction,
		CodeCaptchaDetected, CodeUnsupportedOperation, CodeManualInterventionRequired,
		CodeWebhookTimeout:
		return DispositionManual
	}
	return DispositionTerminal
}

// UserMessage is the caller-facing text for a code. Internal codes never leave the service.
func UserMessage(code Code) string {
	switch code {
	case CodeAuthFailed, CodeInvalidCredentials, CodeSessionExpired:
		return "We could not sign in to your provider account. Please follow the manual steps to cancel."
	case CodeTwoFactorRequired:
		return "Your provider requires a verification step we cannot complete for you. Please follow the manual steps."
	case CodeRetentionOffer:
		return "Your provider presented a retention offer. Please finish the cancellation yourself using the steps below."
	case CodeBillingCycleRestriction:
		return "Your provider does not allow cancellation at this point of the billing cycle. Please follow the manual steps."
	case CodeCaptchaDetected:
		return "Your provider blocked automated access. Please follow the manual steps."
	case CodeWebhookTimeout:
		return "Your provider did not confirm the cancellation in time. Please follow the manual steps."
	case CodeAlreadyCancelled:
		return "This subscription is already cancelled."
	case CodeDuplicateRequest:
		return "A cancellation for this subscription is already in progress."
	case CodeSubscriptionNotFound:
		return "We could not find this subscription."
	case CodeAPIRateLimit, CodeNetworkError, CodeProviderUnavailable, CodeProviderError,
		CodeTimeout, CodeNavigationFailed, CodeElementNotFound:
		return "We could not reach your provider. Please follow the manual steps to cancel."
	}
	return "We could not cancel this subscription automatically. Please follow the manual steps."
}
