// Package cancellation drives a CancellationRequest from validation to a terminal
// state. Every step runs as a queue job, holds the per-request lock and writes
// through conditional status updates so concurrent jobs cannot overwrite each other.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/lock"
	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/internal/repository/specification"
	"cancelflow-be/internal/repository/unitofwork"
	"cancelflow-be/pkg/audit"
	"cancelflow-be/pkg/events"
	"cancelflow-be/pkg/notify"
	"cancelflow-be/pkg/provider"
	"cancelflow-be/pkg/queue"

	"github.com/google/uuid"
)

const module = "CancellationWorkflow"

const lockMargin = 30 * time.Second

// Notifier is satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, to notify.Recipient, notificationType string, payload map[string]interface{}, channels ...notify.Channel)
}

type Config struct {
	DefaultMaxAttempts int
	// LockTTL is raised to JobTimeout plus lockMargin when shorter, so a lease
	// never expires under a handler the queue still considers running.
	LockTTL                  time.Duration
	LockWait                 time.Duration
	JobTimeout               time.Duration
	WebhookTimeout           time.Duration
	ManualConfirmationWindow time.Duration
	Now                      func() time.Time
}

func (c *Config) applyDefaults() {
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = 3
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.JobTimeout > 0 && c.LockTTL < c.JobTimeout+lockMargin {
		c.LockTTL = c.JobTimeout + lockMargin
	}
	if c.LockWait <= 0 {
		c.LockWait = 2 * time.Second
	}
	if c.WebhookTimeout <= 0 {
		c.WebhookTimeout = 5 * time.Minute
	}
	if c.ManualConfirmationWindow <= 0 {
		c.ManualConfirmationWindow = 72 * time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type Deps struct {
	UOWFactory unitofwork.RepositoryFactory
	Queue      *queue.Queue
	Selector   *provider.Selector
	Registry   *provider.Registry
	Trail      *audit.Trail
	Bus        events.Bus
	Notifier   Notifier
	Locker     lock.Locker
	Logger     logger.ILogger
}

type Engine struct {
	uowFactory unitofwork.RepositoryFactory
	queue      *queue.Queue
	selector   *provider.Selector
	registry   *provider.Registry
	trail      *audit.Trail
	bus        events.Bus
	notifier   Notifier
	locker     lock.Locker
	logger     logger.ILogger
	cfg        Config
}

func New(d Deps, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		uowFactory: d.UOWFactory,
		queue:      d.Queue,
		selector:   d.Selector,
		registry:   d.Registry,
		trail:      d.Trail,
		bus:        d.Bus,
		notifier:   d.Notifier,
		locker:     d.Locker,
		logger:     d.Logger,
		cfg:        cfg,
	}
}

// Register installs every workflow processor and dead-letter handler on the
// queue. Call once before the queue starts.
func (e *Engine) Register() error {
	registrations := []error{
		queue.Handle(e.queue, e.validate),
		queue.Handle(e.queue, func(ctx context.Context, job *queue.Job, p APIPayload) queue.Result {
			return e.runStrategy(ctx, job, p.RequestID, entity.MethodAPI)
		}),
		queue.Handle(e.queue, func(ctx context.Context, job *queue.Job, p WebhookPayload) queue.Result {
			return e.runStrategy(ctx, job, p.RequestID, entity.MethodWebhook)
		}),
		queue.Handle(e.queue, func(ctx context.Context, job *queue.Job, p ManualPayload) queue.Result {
			return e.runStrategy(ctx, job, p.RequestID, entity.MethodManual)
		}),
		queue.Handle(e.queue, func(ctx context.Context, job *queue.Job, p WebAutomationPayload) queue.Result {
			return e.runStrategy(ctx, job, p.RequestID, entity.MethodWebAutomation)
		}),
		queue.Handle(e.queue, e.webhookTimeout),
		queue.Handle(e.queue, e.webhookReceived),
		queue.Handle(e.queue, e.confirm),
		queue.Handle(e.queue, e.manualTimeout),
		queue.Handle(e.queue, e.abandonJob),
		e.registerExhausted(),
	}
	return errors.Join(registrations...)
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().UTC()
}

func lockKey(id uuid.UUID) string {
	return "cancellation:" + id.String()
}

func (e *Engine) acquire(ctx context.Context, id uuid.UUID) (lock.Lease, error) {
	lease, err := lock.Obtain(ctx, e.locker, lockKey(id), e.cfg.LockTTL, e.cfg.LockWait)
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, ErrBusy
	}
	return lease, err
}

func (e *Engine) release(ctx context.Context, lease lock.Lease, id uuid.UUID) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn(module, "Failed to release request lock", map[string]interface{}{
			"request_id": id.String(),
			"error":      err.Error(),
		})
	}
}

// lockedResult maps a lock failure to a queue result. Contention did no work,
// so it does not use up an attempt.
func lockedResult(err error) queue.Result {
	if errors.Is(err, ErrBusy) {
		return queue.Requeue(time.Second, err)
	}
	return queue.RetryWithBackoff(err)
}

func (e *Engine) load(ctx context.Context, id uuid.UUID) (*entity.CancellationRequest, error) {
	uow := e.uowFactory.NewUnitOfWork(ctx)
	return uow.CancellationRequestRepository().FindOne(ctx, specification.ByID{ID: id})
}

func (e *Engine) cancelContext(ctx context.Context, req *entity.CancellationRequest) (provider.CancelContext, error) {
	cc := provider.CancelContext{Request: req}
	uow := e.uowFactory.NewUnitOfWork(ctx)
	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: req.SubscriptionID})
	if err != nil {
		return cc, fmt.Errorf("load subscription: %w", err)
	}
	cc.Subscription = sub
	if sub != nil && sub.ProviderID != nil {
		if p, ok := e.registry.ByID(*sub.ProviderID); ok {
			cc.Provider = p
		}
	}
	return cc, nil
}

// logEntry is one CancellationLog line.
type logEntry struct {
	Action   string
	Status   entity.LogStatus
	Message  string
	Metadata map[string]interface{}
}

// commit writes req if its stored status still equals expected, together with the
// log entry and an optional subscription update. False means another writer won.
func (e *Engine) commit(ctx context.Context, req *entity.CancellationRequest, expected entity.CancellationStatus, entry logEntry, sub *entity.Subscription) (bool, error) {
	uow := e.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return false, err
	}
	defer uow.Rollback()

	ok, err := uow.CancellationRequestRepository().UpdateIfStatus(ctx, req, expected)
	if err != nil || !ok {
		return false, err
	}
	if sub != nil {
		if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
			return false, fmt.Errorf("update subscription: %w", err)
		}
	}
	if err := e.trail.Transition(ctx, uow, req, entry.Action, entry.Status, entry.Message, entry.Metadata); err != nil {
		return false, err
	}
	return true, uow.Commit()
}

// note appends a log entry without touching the request row.
func (e *Engine) note(ctx context.Context, req *entity.CancellationRequest, entry logEntry, sub *entity.Subscription) error {
	uow := e.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if sub != nil {
		if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
	}
	if err := e.trail.Transition(ctx, uow, req, entry.Action, entry.Status, entry.Message, entry.Metadata); err != nil {
		return err
	}
	return uow.Commit()
}

func (e *Engine) payload(req *entity.CancellationRequest, cc provider.CancelContext) map[string]interface{} {
	p := map[string]interface{}{
		"request_id":      req.ID.String(),
		"subscription_id": req.SubscriptionID.String(),
		"user_id":         req.UserID.String(),
		"method":          string(req.Method),
		"status":          string(req.Status),
		"provider":        cc.ProviderName(),
		"attempts":        req.Attempts,
		"max_attempts":    req.MaxAttempts,
	}
	if req.ConfirmationCode != nil {
		p["confirmation_code"] = *req.ConfirmationCode
	}
	if req.EffectiveDate != nil {
		p["effective_date"] = req.EffectiveDate.UTC().Format(time.RFC3339)
	}
	if req.RefundAmount != nil {
		p["refund_amount"] = *req.RefundAmount
	}
	if req.ErrorCode != nil {
		p["error_code"] = *req.ErrorCode
		p["message"] = provider.UserMessage(provider.Code(*req.ErrorCode))
	}
	if req.ManualInstructions != nil {
		p["instructions"] = req.ManualInstructions
	}
	return p
}

func (e *Engine) emit(ctx context.Context, eventType string, payload map[string]interface{}) {
	if err := e.bus.Emit(ctx, events.New(eventType, payload)); err != nil {
		e.logger.Warn(module, "Failed to emit event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

func (e *Engine) notify(ctx context.Context, req *entity.CancellationRequest, notificationType string, payload map[string]interface{}, channels ...notify.Channel) {
	if e.notifier == nil {
		return
	}
	// Senders run in the background; give them their own copy.
	copied := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	e.notifier.Notify(ctx, notify.Recipient{UserID: req.UserID, Email: req.ContactEmail}, notificationType, copied, channels...)
}

func dispatch[P queue.Payload](ctx context.Context, e *Engine, payload P, opts queue.Options) error {
	id, err := queue.Dispatch(ctx, e.queue, payload, opts)
	if err != nil {
		e.logger.Error(module, "Failed to enqueue job", map[string]interface{}{
			"type":  payload.JobType(),
			"error": err.Error(),
		})
		return err
	}
	e.logger.Debug(module, "Job enqueued", map[string]interface{}{"type": payload.JobType(), "job_id": id})
	return nil
}

// completion is the confirmed outcome of a successful cancellation.
type completion struct {
	ConfirmationCode string
	EffectiveDate    *time.Time
	RefundAmount     *float64
	Message          string
	Metadata         map[string]interface{}
}

// complete moves a processing request to completed and deactivates the subscription.
func (e *Engine) complete(ctx context.Context, req *entity.CancellationRequest, cc provider.CancelContext, c completion) (bool, error) {
	now := e.now()
	code := c.ConfirmationCode
	effective := c.EffectiveDate
	if effective == nil {
		effective = &now
	}

	req.Status = entity.CancellationStatusCompleted
	req.ConfirmationCode = &code
	req.EffectiveDate = effective
	req.RefundAmount = c.RefundAmount
	req.CompletedAt = &now
	req.Awaiting = entity.AwaitingNone
	req.ErrorCode = nil
	req.ErrorMessage = nil
	req.ErrorDetails = nil

	var sub *entity.Subscription
	if cc.Subscription != nil {
		updated := *cc.Subscription
		updated.IsActive = false
		updated.Status = entity.SubscriptionStatusCancelled
		updated.CancelledAt = &now
		sub = &updated
	}

	metadata := withDefaults(c.Metadata)
	metadata["confirmation_code"] = code
	metadata["effective_date"] = effective.UTC().Format(time.RFC3339)
	if c.RefundAmount != nil {
		metadata["refund_amount"] = *c.RefundAmount
	}

	message := c.Message
	if message == "" {
		message = fmt.Sprintf("%s subscription cancelled", cc.ProviderName())
	}

	ok, err := e.commit(ctx, req, entity.CancellationStatusProcessing, logEntry{
		Action:   "cancellation.completed",
		Status:   entity.LogStatusSuccess,
		Message:  message,
		Metadata: metadata,
	}, sub)
	if err != nil || !ok {
		return ok, err
	}

	payload := e.payload(req, cc)
	e.emit(ctx, events.CancellationCompleted, payload)
	e.trail.Track(ctx, "cancellation_completed", map[string]interface{}{
		"request_id": req.ID.String(),
		"method":     string(req.Method),
		"provider":   cc.ProviderName(),
		"attempts":   req.Attempts,
	})
	e.notify(ctx, req, events.CancellationCompleted, payload, notify.ChannelPush)
	_ = dispatch(ctx, e, ConfirmPayload{RequestID: req.ID.String()}, queue.Options{})

	e.logger.Info(module, "Cancellation completed", map[string]interface{}{
		"request_id": req.ID.String(),
		"method":     string(req.Method),
	})
	return true, nil
}

// failure describes how a request ends in failed.
type failure struct {
	Err      *provider.Error
	Expected entity.CancellationStatus
	// WithInstructions attaches a manual instruction set if the request has none yet.
	WithInstructions bool
	Instructions     *entity.ManualInstructionSet
	// ManualRequired emits cancellation.manual_required alongside cancellation.failed.
	ManualRequired bool
	Metadata       map[string]interface{}
}

func (e *Engine) fail(ctx context.Context, req *entity.CancellationRequest, cc provider.CancelContext, f failure) (bool, error) {
	code := string(f.Err.Code)
	message := f.Err.Message

	req.Status = entity.CancellationStatusFailed
	req.ErrorCode = &code
	req.ErrorMessage = &message
	req.ErrorDetails = f.Err.Details
	req.Awaiting = entity.AwaitingNone
	if f.Instructions != nil {
		req.ManualInstructions = f.Instructions
	}
	if f.WithInstructions && req.ManualInstructions == nil {
		req.ManualInstructions = e.selector.Manual().Instructions(cc)
	}

	metadata := withDefaults(f.Metadata)
	metadata["code"] = code
	metadata["disposition"] = provider.Classify(f.Err.Code).String()
	if len(f.Err.Details) > 0 {
		metadata["details"] = f.Err.Details
	}
	metadata["manual_instructions"] = req.ManualInstructions != nil

	ok, err := e.commit(ctx, req, f.Expected, logEntry{
		Action:   "cancellation.failed",
		Status:   entity.LogStatusFailure,
		Message:  message,
		Metadata: metadata,
	}, nil)
	if err != nil || !ok {
		return ok, err
	}

	payload := e.payload(req, cc)
	e.emit(ctx, events.CancellationFailed, payload)
	if f.ManualRequired {
		e.emit(ctx, events.CancellationManualRequired, payload)
		e.notify(ctx, req, events.CancellationManualRequired, payload)
	} else {
		e.notify(ctx, req, events.CancellationFailed, payload)
	}
	e.trail.Track(ctx, "cancellation_failed", map[string]interface{}{
		"request_id": req.ID.String(),
		"method":     string(req.Method),
		"provider":   cc.ProviderName(),
		"code":       code,
	})

	e.logger.Warn(module, "Cancellation failed", map[string]interface{}{
		"request_id": req.ID.String(),
		"code":       code,
		"message":    message,
	})
	return true, nil
}

func withDefaults(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func parseRequestID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid request id %q: %w", raw, err)
	}
	return id, nil
}
