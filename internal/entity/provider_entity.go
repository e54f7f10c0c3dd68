package entity

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

type Provider struct {
	ID                 uuid.UUID
	Name               string
	NormalizedName     string
	Type               CancellationMethod
	Settings           ProviderSettings
	SupportsRefunds    bool
	Requires2FA        bool
	HasRetentionOffers bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProviderSettings is the per-provider configuration blob.
type ProviderSettings struct {
	APIEndpoint    string                `json:"api_endpoint,omitempty"`
	CredentialsRef string                `json:"credentials_ref,omitempty"`
	WebhookInitURL string                `json:"webhook_init_url,omitempty"`
	StartURL       string                `json:"start_url,omitempty"`
	CancelURL      string                `json:"cancel_url,omitempty"`
	Automation     []AutomationStep      `json:"automation,omitempty"`
	CaptchaMarkers []string              `json:"captcha_markers,omitempty"`
	Instructions   *ManualInstructionSet `json:"instructions,omitempty"`
	Contact        ContactInfo           `json:"contact"`
}

// AutomationStep is one entry of a web automation navigation script.
type AutomationStep struct {
	Name      string `json:"name,omitempty"`
	Action    string `json:"action"` // click, fill, wait, waitForSelector, screenshot
	Selector  string `json:"selector,omitempty"`
	Value     string `json:"value,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// NormalizeProviderName turns display names like "Disney+" or "YouTube Premium"
// into registry keys ("disney_plus", "youtube_premium").
func NormalizeProviderName(name string) string {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "+", " plus")
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
