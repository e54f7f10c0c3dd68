package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/logger"
)

const (
	ActionClick           = "click"
	ActionFill            = "fill"
	ActionWait            = "wait"
	ActionWaitForSelector = "waitForSelector"
	ActionScreenshot      = "screenshot"
)

var defaultCaptchaMarkers = []string{
	"captcha",
	"are you a robot",
	"verify you are human",
	"unusual traffic",
	"too many requests",
	"rate limit",
}

// Browser opens isolated sessions. Every session must be closed by the caller.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is a single browser tab.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	WaitVisible(ctx context.Context, selector string) error
	Screenshot(ctx context.Context, name string) (string, error)
	PageText(ctx context.Context) (string, error)
	Close() error
}

type AutomationConfig struct {
	StepTimeout  time.Duration
	TotalTimeout time.Duration
}

// WebAutomationStrategy drives the provider's account pages through a configured script.
type WebAutomationStrategy struct {
	browser Browser
	cfg     AutomationConfig
	logger  logger.ILogger
	now     func() time.Time
}

func NewWebAutomationStrategy(browser Browser, cfg AutomationConfig, log logger.ILogger) *WebAutomationStrategy {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 15 * time.Second
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = 90 * time.Second
	}
	return &WebAutomationStrategy{browser: browser, cfg: cfg, logger: log, now: time.Now}
}

func (s *WebAutomationStrategy) Method() entity.CancellationMethod {
	return entity.MethodWebAutomation
}

func (s *WebAutomationStrategy) Cancel(ctx context.Context, cc CancelContext) (result Result) {
	if cc.Provider == nil || cc.Provider.Settings.StartURL == "" || len(cc.Provider.Settings.Automation) == 0 {
		return Failed(NewError(CodeUnsupportedOperation,
			fmt.Sprintf("no automation script configured for %s", cc.ProviderName()), nil))
	}
	if s.browser == nil {
		return Failed(NewError(CodeUnsupportedOperation, "browser automation is disabled", nil))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TotalTimeout)
	defer cancel()

	session, err := s.browser.NewSession(ctx)
	if err != nil {
		return Failed(NewError(CodeNavigationFailed, fmt.Sprintf("start browser: %v", err), nil))
	}

	var steps []StepLog
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Error: NewError(CodeNavigationFailed, fmt.Sprintf("automation aborted: %v", r), nil),
				Steps: steps,
			}
		}
		if err := session.Close(); err != nil {
			s.logger.Warn("WebAutomation", "Failed to close browser session", map[string]interface{}{
				"provider": cc.ProviderName(),
				"error":    err.Error(),
			})
		}
	}()

	markers := cc.Provider.Settings.CaptchaMarkers
	if len(markers) == 0 {
		markers = defaultCaptchaMarkers
	}

	started := s.now()
	if err := s.bounded(ctx, 0, func(stepCtx context.Context) error {
		return session.Navigate(stepCtx, cc.Provider.Settings.StartURL)
	}); err != nil {
		steps = append(steps, StepLog{Step: "navigate", Status: "failed", Message: err.Error(), DurationMs: s.since(started)})
		return Result{Error: s.stepError(ctx, CodeNavigationFailed, "navigate", err), Steps: steps}
	}
	steps = append(steps, StepLog{Step: "navigate", Status: "ok", Message: cc.Provider.Settings.StartURL, DurationMs: s.since(started)})

	if perr := s.checkBlocked(ctx, session, markers); perr != nil {
		steps = append(steps, StepLog{Step: "navigate", Status: "blocked", Message: perr.Message})
		return Result{Error: perr, Steps: steps}
	}

	var screenshots []string
	for i, step := range cc.Provider.Settings.Automation {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("%d_%s", i+1, step.Action)
		}

		started := s.now()
		shot, err := s.runStep(ctx, session, step, name)
		entry := StepLog{Step: name, Status: "ok", Screenshot: shot, DurationMs: s.since(started)}
		if shot != "" {
			screenshots = append(screenshots, shot)
		}
		if err != nil {
			entry.Status = "failed"
			entry.Message = err.Error()
			steps = append(steps, entry)

			// A missing element is often the block page itself
			if perr := s.checkBlocked(ctx, session, markers); perr != nil {
				return Result{Error: perr, Steps: steps}
			}
			code := CodeElementNotFound
			if step.Action == ActionWait {
				code = CodeTimeout
			}
			return Result{Error: s.stepError(ctx, code, name, err), Steps: steps}
		}
		steps = append(steps, entry)

		if perr := s.checkBlocked(ctx, session, markers); perr != nil {
			return Result{Error: perr, Steps: steps}
		}
	}

	now := s.now()
	effective := now.UTC()
	if cc.Subscription != nil && cc.Subscription.CurrentPeriodEnd != nil {
		effective = *cc.Subscription.CurrentPeriodEnd
	}
	return Result{
		Success:          true,
		ConfirmationCode: ConfirmationCode("WEB", now),
		EffectiveDate:    &effective,
		Steps:            steps,
		Metadata:         map[string]interface{}{"screenshots": screenshots},
	}
}

func (s *WebAutomationStrategy) runStep(ctx context.Context, session Session, step entity.AutomationStep, name string) (string, error) {
	timeout := time.Duration(step.TimeoutMs) * time.Millisecond

	switch step.Action {
	case ActionClick:
		return "", s.bounded(ctx, timeout, func(c context.Context) error { return session.Click(c, step.Selector) })
	case ActionFill:
		return "", s.bounded(ctx, timeout, func(c context.Context) error { return session.Fill(c, step.Selector, step.Value) })
	case ActionWaitForSelector:
		return "", s.bounded(ctx, timeout, func(c context.Context) error { return session.WaitVisible(c, step.Selector) })
	case ActionWait:
		if timeout <= 0 {
			timeout = time.Second
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(timeout):
			return "", nil
		}
	case ActionScreenshot:
		var ref string
		err := s.bounded(ctx, timeout, func(c context.Context) error {
			var err error
			ref, err = session.Screenshot(c, name)
			return err
		})
		return ref, err
	}
	return "", fmt.Errorf("unknown automation action %q", step.Action)
}

// bounded runs fn under the step timeout, never past the overall deadline.
func (s *WebAutomationStrategy) bounded(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		timeout = s.cfg.StepTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(stepCtx)
}

func (s *WebAutomationStrategy) checkBlocked(ctx context.Context, session Session, markers []string) *Error {
	var text string
	if err := s.bounded(ctx, 0, func(c context.Context) error {
		var err error
		text, err = session.PageText(c)
		return err
	}); err != nil {
		return nil
	}

	lower := strings.ToLower(text)
	for _, marker := range markers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return NewError(CodeCaptchaDetected, "anti-automation challenge detected", map[string]interface{}{"marker": marker})
		}
	}
	return nil
}

// stepError reports the whole run as TIMEOUT once the total budget is gone.
func (s *WebAutomationStrategy) stepError(ctx context.Context, code Code, step string, err error) *Error {
	if ctx.Err() != nil {
		return NewError(CodeTimeout, fmt.Sprintf("automation exceeded %s", s.cfg.TotalTimeout), map[string]interface{}{"step": step})
	}
	if errors.Is(err, context.DeadlineExceeded) && code == CodeNavigationFailed {
		code = CodeTimeout
	}
	return NewError(code, fmt.Sprintf("step %s: %v", step, err), map[string]interface{}{"step": step})
}

func (s *WebAutomationStrategy) since(t time.Time) int64 {
	return s.now().Sub(t).Milliseconds()
}
