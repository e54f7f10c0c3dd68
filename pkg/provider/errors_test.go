package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code Code
		want Disposition
	}{
		{CodeAuthFailed, DispositionTerminal},
		{CodeInvalidCredentials, DispositionTerminal},
		{CodeSessionExpired, DispositionTerminal},
		{CodeAlreadyCancelled, DispositionTerminal},
		{CodeAPIRateLimit, DispositionRetry},
		{CodeNetworkError, DispositionRetry},
		{CodeProviderUnavailable, DispositionRetry},
		{CodeProviderError, DispositionRetry},
		{CodeTimeout, DispositionRetry},
		{CodeNavigationFailed, DispositionRetry},
		{CodeElementNotFound, DispositionRetry},
		{CodeTwoFactorRequired, DispositionManual},
		{CodeRetentionOffer, DispositionManual},
		{CodeBillingCycleRestriction, DispositionManual},
		{CodeCaptchaDetected, DispositionManual},
		{CodeUnsupportedOperation, DispositionManual},
		{CodeManualInterventionRequired, DispositionManual},
		{Code("SOMETHING_NEW"), DispositionTerminal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.code))
		})
	}
}

func TestUserMessageNeverLeaksCode(t *testing.T) {
	for _, code := range []Code{CodeAuthFailed, CodeTwoFactorRequired, CodeWebhookTimeout, CodeNetworkError, Code("X")} {
		msg := UserMessage(code)
		assert.NotEmpty(t, msg)
		assert.NotContains(t, msg, string(code))
	}
}
