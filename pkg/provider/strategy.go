// Package provider holds the cancellation strategies and the selector that picks
// one for a provider.
package provider

import (
	"context"
	"strconv"
	"strings"
	"time"

	"cancelflow-be/internal/entity"

	"github.com/google/uuid"
)

// CancelContext is everything a strategy may read. Strategies never write to storage.
type CancelContext struct {
	Request      *entity.CancellationRequest
	Subscription *entity.Subscription
	Provider     *entity.Provider
}

// ProviderName is the display name, or "your provider" when the record is missing.
func (c CancelContext) ProviderName() string {
	if c.Provider == nil || c.Provider.Name == "" {
		return "your provider"
	}
	return c.Provider.Name
}

// StepLog is one entry of a strategy's execution log.
type StepLog struct {
	Step       string `json:"step"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Result is a strategy outcome. Exactly one of Success, Pending or Error is meaningful.
type Result struct {
	Success            bool
	Pending            bool
	WebhookID          string
	ConfirmationCode   string
	EffectiveDate      *time.Time
	RefundAmount       *float64
	ManualInstructions *entity.ManualInstructionSet
	Error              *Error
	Steps              []StepLog
	Metadata           map[string]interface{}
}

func Failed(err *Error) Result {
	return Result{Error: err}
}

type Strategy interface {
	Method() entity.CancellationMethod
	Cancel(ctx context.Context, cc CancelContext) Result
}

// Selector maps a method to its strategy. Anything unregistered falls through to manual.
type Selector struct {
	manual     *ManualStrategy
	strategies map[entity.CancellationMethod]Strategy
}

func NewSelector(manual *ManualStrategy, strategies ...Strategy) *Selector {
	s := &Selector{
		manual:     manual,
		strategies: map[entity.CancellationMethod]Strategy{entity.MethodManual: manual},
	}
	for _, strategy := range strategies {
		if strategy != nil {
			s.strategies[strategy.Method()] = strategy
		}
	}
	return s
}

// Resolve picks the method for a request: an explicit valid request method wins,
// then the provider type, then manual.
func (s *Selector) Resolve(requested entity.CancellationMethod, p *entity.Provider) entity.CancellationMethod {
	method := requested
	if !method.IsValid() && p != nil {
		method = p.Type
	}
	if _, ok := s.strategies[method]; !ok {
		return entity.MethodManual
	}
	return method
}

func (s *Selector) For(method entity.CancellationMethod) Strategy {
	if strategy, ok := s.strategies[method]; ok {
		return strategy
	}
	return s.manual
}

func (s *Selector) Manual() *ManualStrategy {
	return s.manual
}

// ConfirmationCode builds "<PREFIX>-<unix ms>-<8 upper alnum>".
func ConfirmationCode(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return prefix + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}
