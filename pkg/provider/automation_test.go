package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	mu       sync.Mutex
	sessions []*fakeSession
	text     string
	missing  map[string]bool
	panicOn  string
	startErr error
}

func (b *fakeBrowser) NewSession(ctx context.Context) (Session, error) {
	if b.startErr != nil {
		return nil, b.startErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeSession{browser: b}
	b.sessions = append(b.sessions, s)
	return s, nil
}

func (b *fakeBrowser) allClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		if !s.closed {
			return false
		}
	}
	return len(b.sessions) > 0
}

type fakeSession struct {
	browser *fakeBrowser
	actions []string
	closed  bool
}

func (s *fakeSession) do(action, selector string) error {
	s.actions = append(s.actions, action+":"+selector)
	if selector != "" && selector == s.browser.panicOn {
		panic("renderer crashed")
	}
	if s.browser.missing[selector] {
		return errors.New("waiting for selector: context deadline exceeded")
	}
	return nil
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error { return s.do("navigate", "") }
func (s *fakeSession) Click(ctx context.Context, selector string) error {
	return s.do("click", selector)
}
func (s *fakeSession) Fill(ctx context.Context, selector, value string) error {
	return s.do("fill", selector)
}
func (s *fakeSession) WaitVisible(ctx context.Context, selector string) error {
	return s.do("wait", selector)
}
func (s *fakeSession) Screenshot(ctx context.Context, name string) (string, error) {
	return "screenshots/" + name + ".jpg", s.do("screenshot", "")
}
func (s *fakeSession) PageText(ctx context.Context) (string, error) { return s.browser.text, nil }
func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func automationContext() CancelContext {
	return CancelContext{
		Request:      &entity.CancellationRequest{ID: uuid.New()},
		Subscription: &entity.Subscription{ID: uuid.New(), ExternalID: "hulu-1"},
		Provider: &entity.Provider{
			Name:           "Hulu",
			NormalizedName: "hulu",
			Type:           entity.MethodWebAutomation,
			Settings: entity.ProviderSettings{
				StartURL: "https://secure.hulu.test/account",
				Automation: []entity.AutomationStep{
					{Action: ActionFill, Selector: "#email", Value: "user@example.com"},
					{Action: ActionClick, Selector: "#cancel"},
					{Action: ActionWaitForSelector, Selector: ".confirmation"},
					{Name: "done", Action: ActionScreenshot},
				},
			},
		},
	}
}

func newAutomation(b Browser) *WebAutomationStrategy {
	return NewWebAutomationStrategy(b, AutomationConfig{StepTimeout: time.Second, TotalTimeout: 5 * time.Second}, logger.NewNopLogger())
}

func TestWebAutomation_Success(t *testing.T) {
	browser := &fakeBrowser{text: "Your subscription has been cancelled"}
	result := newAutomation(browser).Cancel(context.Background(), automationContext())

	require.True(t, result.Success, "%+v", result.Error)
	assert.Regexp(t, `^WEB-\d+-[A-Z0-9]{8}$`, result.ConfirmationCode)
	assert.Len(t, result.Steps, 5)
	assert.Equal(t, []string{"screenshots/done.jpg"}, result.Metadata["screenshots"])
	assert.True(t, browser.allClosed())
}

func TestWebAutomation_CaptchaIsNotRetryable(t *testing.T) {
	browser := &fakeBrowser{text: "Please complete the CAPTCHA to continue"}
	result := newAutomation(browser).Cancel(context.Background(), automationContext())

	require.NotNil(t, result.Error)
	assert.Equal(t, CodeCaptchaDetected, result.Error.Code)
	assert.Equal(t, DispositionManual, Classify(result.Error.Code))
	assert.True(t, browser.allClosed())
}

func TestWebAutomation_ElementNotFound(t *testing.T) {
	browser := &fakeBrowser{missing: map[string]bool{"#cancel": true}}
	result := newAutomation(browser).Cancel(context.Background(), automationContext())

	require.NotNil(t, result.Error)
	assert.Equal(t, CodeElementNotFound, result.Error.Code)
	assert.Equal(t, DispositionRetry, Classify(result.Error.Code))
	assert.Equal(t, "failed", result.Steps[len(result.Steps)-1].Status)
	assert.True(t, browser.allClosed())
}

func TestWebAutomation_PanicStillClosesSession(t *testing.T) {
	browser := &fakeBrowser{panicOn: "#cancel"}
	result := newAutomation(browser).Cancel(context.Background(), automationContext())

	require.NotNil(t, result.Error)
	assert.Equal(t, CodeNavigationFailed, result.Error.Code)
	assert.True(t, browser.allClosed())
}

func TestWebAutomation_MisconfiguredProvider(t *testing.T) {
	cc := automationContext()
	cc.Provider.Settings.Automation = nil

	result := newAutomation(&fakeBrowser{}).Cancel(context.Background(), cc)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeUnsupportedOperation, result.Error.Code)

	result = newAutomation(&fakeBrowser{startErr: errors.New("no chrome")}).Cancel(context.Background(), automationContext())
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeNavigationFailed, result.Error.Code)
}

func TestWebAutomation_TotalTimeout(t *testing.T) {
	cc := automationContext()
	cc.Provider.Settings.Automation = []entity.AutomationStep{{Action: ActionWait, TimeoutMs: 2000}}

	strategy := NewWebAutomationStrategy(&fakeBrowser{}, AutomationConfig{StepTimeout: time.Second, TotalTimeout: 100 * time.Millisecond}, logger.NewNopLogger())
	result := strategy.Cancel(context.Background(), cc)

	require.NotNil(t, result.Error)
	assert.Equal(t, CodeTimeout, result.Error.Code)
}
