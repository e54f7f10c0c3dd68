package cancellation

import (
	"context"
	"fmt"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/pkg/events"
	"cancelflow-be/pkg/notify"
	"cancelflow-be/pkg/provider"
	"cancelflow-be/pkg/queue"

	"github.com/google/uuid"
)

type SubmitInput struct {
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	Method         entity.CancellationMethod // empty means "use the provider type"
	MaxAttempts    int
	Reason         string
	ContactEmail   string
}

// Submit stores a new pending request and queues its validation.
// ErrActiveRequestExists is returned when the subscription already has one.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*entity.CancellationRequest, error) {
	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.cfg.DefaultMaxAttempts
	}

	req := &entity.CancellationRequest{
		ID:             uuid.New(),
		SubscriptionID: in.SubscriptionID,
		UserID:         in.UserID,
		Method:         in.Method,
		Status:         entity.CancellationStatusPending,
		Reason:         in.Reason,
		ContactEmail:   in.ContactEmail,
		MaxAttempts:    maxAttempts,
	}

	uow := e.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.CancellationRequestRepository().Create(ctx, req); err != nil {
		return nil, err
	}
	if err := e.trail.Transition(ctx, uow, req, "cancellation.requested", entity.LogStatusInfo, "cancellation requested", map[string]interface{}{
		"method":       string(in.Method),
		"max_attempts": maxAttempts,
		"reason":       in.Reason,
	}); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	e.emit(ctx, events.CancellationRequested, e.payload(req, provider.CancelContext{Request: req}))
	e.trail.Track(ctx, "cancellation_requested", map[string]interface{}{
		"request_id": req.ID.String(),
		"method":     string(in.Method),
	})

	if err := dispatch(ctx, e, ValidatePayload{RequestID: req.ID.String()}, queue.Options{}); err != nil {
		return req, fmt.Errorf("queue validation: %w", err)
	}
	return req, nil
}

// Confirmation is the user's report on a manual cancellation.
type Confirmation struct {
	WasSuccessful    bool
	ConfirmationCode string
	EffectiveDate    *time.Time
}

type Ack struct {
	RequestID uuid.UUID
	Status    entity.CancellationStatus
	Changed   bool
	Message   string
}

// ConfirmByUser records the user's answer for a request that handed them manual
// instructions. A request still waiting on the user completes or fails; a request
// that already failed over to manual steps keeps its status and only the
// subscription is updated.
func (e *Engine) ConfirmByUser(ctx context.Context, requestID, userID uuid.UUID, in Confirmation) (*Ack, error) {
	lease, err := e.acquire(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer e.release(ctx, lease, requestID)

	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.UserID != userID {
		return nil, ErrNotOwner
	}

	cc, err := e.cancelContext(ctx, req)
	if err != nil {
		return nil, err
	}
	metadata := map[string]interface{}{"was_successful": in.WasSuccessful, "source": "user"}

	switch {
	case req.Status == entity.CancellationStatusCompleted:
		return &Ack{RequestID: req.ID, Status: req.Status, Message: "cancellation already completed"}, nil

	case req.Status == entity.CancellationStatusProcessing && req.Awaiting == entity.AwaitingUser:
		if in.WasSuccessful {
			code := in.ConfirmationCode
			if code == "" {
				code = provider.ConfirmationCode("MAN", e.now())
			}
			ok, err := e.complete(ctx, req, cc, completion{
				ConfirmationCode: code,
				EffectiveDate:    in.EffectiveDate,
				Message:          "user confirmed the manual cancellation",
				Metadata:         metadata,
			})
			if err != nil {
				return nil, err
			}
			return &Ack{RequestID: req.ID, Status: req.Status, Changed: ok, Message: "cancellation confirmed"}, nil
		}

		ok, err := e.fail(ctx, req, cc, failure{
			Err:      provider.NewError(provider.CodeManualInterventionRequired, "user reported the manual cancellation did not succeed", nil),
			Expected: entity.CancellationStatusProcessing,
			Metadata: metadata,
		})
		if err != nil {
			return nil, err
		}
		return &Ack{RequestID: req.ID, Status: req.Status, Changed: ok, Message: "marked as not cancelled"}, nil

	case req.Status == entity.CancellationStatusFailed && req.ManualInstructions != nil:
		var sub *entity.Subscription
		if in.WasSuccessful && cc.Subscription != nil && !cc.Subscription.IsCancelled() {
			now := e.now()
			updated := *cc.Subscription
			updated.IsActive = false
			updated.Status = entity.SubscriptionStatusCancelled
			updated.CancelledAt = &now
			sub = &updated
		}
		if in.ConfirmationCode != "" {
			metadata["confirmation_code"] = in.ConfirmationCode
		}
		if err := e.note(ctx, req, logEntry{
			Action:   "manual.user_reported",
			Status:   entity.LogStatusInfo,
			Message:  "user reported the outcome of the manual steps",
			Metadata: metadata,
		}, sub); err != nil {
			return nil, err
		}
		if in.WasSuccessful {
			e.trail.Track(ctx, "manual_cancellation_reported", map[string]interface{}{"request_id": req.ID.String()})
		}
		return &Ack{RequestID: req.ID, Status: req.Status, Message: "thanks, your answer was recorded"}, nil
	}

	return nil, ErrNotConfirmable
}

// Retry moves a failed request back to pending and queues validation again.
// A zero userID skips the ownership check (admin use).
func (e *Engine) Retry(ctx context.Context, requestID, userID uuid.UUID) (*entity.CancellationRequest, error) {
	lease, err := e.acquire(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer e.release(ctx, lease, requestID)

	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if userID != uuid.Nil && req.UserID != userID {
		return nil, ErrNotOwner
	}
	if req.Status != entity.CancellationStatusFailed {
		return nil, ErrNotRetryable
	}

	previous := ""
	if req.ErrorCode != nil {
		previous = *req.ErrorCode
	}

	req.Status = entity.CancellationStatusPending
	req.Attempts = 0
	req.ErrorCode = nil
	req.ErrorMessage = nil
	req.ErrorDetails = nil
	req.ManualInstructions = nil
	req.WebhookID = nil
	req.WebhookExpiresAt = nil
	req.Awaiting = entity.AwaitingNone

	ok, err := e.commit(ctx, req, entity.CancellationStatusFailed, logEntry{
		Action:   "cancellation.retried",
		Status:   entity.LogStatusInfo,
		Message:  "retry requested",
		Metadata: map[string]interface{}{"previous_error": previous},
	}, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRetryable
	}

	e.emit(ctx, events.CancellationRetried, e.payload(req, provider.CancelContext{Request: req}))
	if err := dispatch(ctx, e, ValidatePayload{RequestID: req.ID.String()}, queue.Options{}); err != nil {
		return req, fmt.Errorf("queue validation: %w", err)
	}
	return req, nil
}

func (e *Engine) confirm(ctx context.Context, job *queue.Job, p ConfirmPayload) queue.Result {
	id, err := parseRequestID(p.RequestID)
	if err != nil {
		return queue.Fail(err)
	}
	lease, err := e.acquire(ctx, id)
	if err != nil {
		return lockedResult(err)
	}
	defer e.release(ctx, lease, id)

	req, err := e.load(ctx, id)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}
	if req == nil {
		return queue.Fail(ErrRequestNotFound)
	}
	if req.Status != entity.CancellationStatusCompleted {
		return queue.Fail(fmt.Errorf("%w: status is %s", ErrNotConfirmable, req.Status))
	}

	cc, err := e.cancelContext(ctx, req)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}

	if err := e.note(ctx, req, logEntry{
		Action:   "confirmation.delivered",
		Status:   entity.LogStatusSuccess,
		Message:  "confirmation sent to the user",
		Metadata: map[string]interface{}{"confirmation_code": derefString(req.ConfirmationCode)},
	}, nil); err != nil {
		return queue.RetryWithBackoff(err)
	}

	e.notify(ctx, req, events.CancellationCompleted, e.payload(req, cc), notify.ChannelEmail, notify.ChannelEvent)
	e.trail.Track(ctx, "cancellation_confirmed", map[string]interface{}{
		"request_id": req.ID.String(),
		"provider":   cc.ProviderName(),
	})
	return queue.Done()
}

func (e *Engine) manualTimeout(ctx context.Context, job *queue.Job, p ManualTimeoutPayload) queue.Result {
	id, err := parseRequestID(p.RequestID)
	if err != nil {
		return queue.Fail(err)
	}
	lease, err := e.acquire(ctx, id)
	if err != nil {
		return lockedResult(err)
	}
	defer e.release(ctx, lease, id)

	req, err := e.load(ctx, id)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}
	if req == nil {
		return queue.Fail(ErrRequestNotFound)
	}
	if req.Status != entity.CancellationStatusProcessing || req.Awaiting != entity.AwaitingUser {
		return queue.Done()
	}

	cc, err := e.cancelContext(ctx, req)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}
	if _, err := e.fail(ctx, req, cc, failure{
		Err: provider.NewError(provider.CodeManualInterventionRequired,
			fmt.Sprintf("no confirmation received within %s", e.cfg.ManualConfirmationWindow), nil),
		Expected: entity.CancellationStatusProcessing,
	}); err != nil {
		return queue.RetryWithBackoff(err)
	}
	return queue.Done()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
