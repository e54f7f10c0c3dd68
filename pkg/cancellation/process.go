package cancellation

import (
	"context"
	"fmt"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/repository/specification"
	"cancelflow-be/pkg/events"
	"cancelflow-be/pkg/notify"
	"cancelflow-be/pkg/provider"
	"cancelflow-be/pkg/queue"
)

func (e *Engine) validate(ctx context.Context, job *queue.Job, p ValidatePayload) queue.Result {
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

	switch req.Status {
	case entity.CancellationStatusPending:
	case entity.CancellationStatusProcessing:
		// A previous run committed but could not enqueue the strategy job.
		if req.Attempts == 0 && req.Awaiting == entity.AwaitingNone {
			if err := e.dispatchStrategy(ctx, req); err != nil {
				return queue.RetryWithBackoff(err)
			}
		}
		return queue.Done()
	default:
		return queue.Done()
	}

	cc, err := e.cancelContext(ctx, req)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}

	rejection, err := e.check(ctx, req, cc)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}
	if rejection != nil {
		if _, err := e.fail(ctx, req, cc, failure{Err: rejection, Expected: entity.CancellationStatusPending}); err != nil {
			return queue.RetryWithBackoff(err)
		}
		return queue.Fail(rejection)
	}

	requested := req.Method
	method := e.selector.Resolve(requested, cc.Provider)
	metadata := map[string]interface{}{
		"method":           string(method),
		"requested_method": string(requested),
		"provider":         cc.ProviderName(),
	}
	if requested.IsValid() && requested != method {
		metadata["fallback"] = true
	}

	req.Method = method
	req.Status = entity.CancellationStatusProcessing
	ok, err := e.commit(ctx, req, entity.CancellationStatusPending, logEntry{
		Action:   "cancellation.validated",
		Status:   entity.LogStatusInfo,
		Message:  fmt.Sprintf("dispatching %s cancellation", method),
		Metadata: metadata,
	}, nil)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}
	if !ok {
		return queue.Done()
	}

	payload := e.payload(req, cc)
	e.emit(ctx, events.CancellationProcessing, payload)
	e.notify(ctx, req, events.CancellationProcessing, payload, notify.ChannelPush)

	if err := e.dispatchStrategy(ctx, req); err != nil {
		return queue.RetryWithBackoff(err)
	}
	return queue.Done()
}

// check returns the validation error that rejects req, if any. A non-nil error
// means the check itself could not run.
func (e *Engine) check(ctx context.Context, req *entity.CancellationRequest, cc provider.CancelContext) (*provider.Error, error) {
	if cc.Subscription == nil {
		return provider.NewError(provider.CodeSubscriptionNotFound, "subscription no longer exists", nil), nil
	}
	if cc.Subscription.IsCancelled() {
		return provider.NewError(provider.CodeAlreadyCancelled, "subscription is already cancelled", map[string]interface{}{
			"subscription_status": string(cc.Subscription.Status),
		}), nil
	}

	uow := e.uowFactory.NewUnitOfWork(ctx)
	others, err := uow.CancellationRequestRepository().Count(ctx,
		specification.BySubscriptionID{SubscriptionID: req.SubscriptionID},
		specification.ActiveRequest(),
		specification.ExcludeID{ID: req.ID},
	)
	if err != nil {
		return nil, fmt.Errorf("count active requests: %w", err)
	}
	if others > 0 {
		return provider.NewError(provider.CodeDuplicateRequest, "another cancellation is already in progress for this subscription", nil), nil
	}
	return nil, nil
}

func (e *Engine) dispatchStrategy(ctx context.Context, req *entity.CancellationRequest) error {
	opts := queue.Options{MaxAttempts: req.MaxAttempts}
	id := req.ID.String()
	switch req.Method {
	case entity.MethodAPI:
		return dispatch(ctx, e, APIPayload{RequestID: id}, opts)
	case entity.MethodWebhook:
		return dispatch(ctx, e, WebhookPayload{RequestID: id}, opts)
	case entity.MethodWebAutomation:
		return dispatch(ctx, e, WebAutomationPayload{RequestID: id}, opts)
	default:
		return dispatch(ctx, e, ManualPayload{RequestID: id}, opts)
	}
}

// runStrategy executes one cancellation attempt for a processing request.
func (e *Engine) runStrategy(ctx context.Context, job *queue.Job, requestID string, method entity.CancellationMethod) queue.Result {
	id, err := parseRequestID(requestID)
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
	if req.Status != entity.CancellationStatusProcessing || req.Awaiting != entity.AwaitingNone || req.Method != method {
		e.logger.Debug(module, "Skipping strategy job for settled request", map[string]interface{}{
			"request_id": id.String(),
			"status":     string(req.Status),
			"awaiting":   string(req.Awaiting),
		})
		return queue.Done()
	}

	cc, err := e.cancelContext(ctx, req)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}

	started := e.now()
	res := e.selector.For(method).Cancel(ctx, cc)
	req.Attempts++

	metadata := map[string]interface{}{
		"method":      string(method),
		"attempt":     req.Attempts,
		"duration_ms": e.now().Sub(started).Milliseconds(),
	}
	if len(res.Steps) > 0 {
		metadata["steps"] = res.Steps
	}
	for k, v := range res.Metadata {
		if _, taken := metadata[k]; !taken {
			metadata[k] = v
		}
	}

	switch {
	case res.Success:
		if _, err := e.complete(ctx, req, cc, completion{
			ConfirmationCode: res.ConfirmationCode,
			EffectiveDate:    res.EffectiveDate,
			RefundAmount:     res.RefundAmount,
			Metadata:         metadata,
		}); err != nil {
			return queue.RetryWithBackoff(err)
		}
		return queue.Done()
	case res.Pending:
		return e.awaitWebhook(ctx, req, cc, res, metadata)
	default:
		return e.handleFailure(ctx, job, req, cc, res, metadata)
	}
}

func (e *Engine) awaitWebhook(ctx context.Context, req *entity.CancellationRequest, cc provider.CancelContext, res provider.Result, metadata map[string]interface{}) queue.Result {
	expires := e.now().Add(e.cfg.WebhookTimeout)
	webhookID := res.WebhookID
	req.WebhookID = &webhookID
	req.WebhookExpiresAt = &expires
	req.Awaiting = entity.AwaitingWebhook

	metadata["webhook_id"] = webhookID
	metadata["expires_at"] = expires.Format(time.RFC3339)

	ok, err := e.commit(ctx, req, entity.CancellationStatusProcessing, logEntry{
		Action:   "webhook.awaiting",
		Status:   entity.LogStatusInfo,
		Message:  fmt.Sprintf("waiting for %s to confirm the cancellation", cc.ProviderName()),
		Metadata: metadata,
	}, nil)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}
	if !ok {
		return queue.Done()
	}

	if err := dispatch(ctx, e, WebhookTimeoutPayload{RequestID: req.ID.String(), WebhookID: webhookID}, queue.Options{Delay: e.cfg.WebhookTimeout}); err != nil {
		// The request is parked; without a timeout job it would wait forever.
		return queue.RetryWithBackoff(err)
	}
	return queue.Done()
}

func (e *Engine) awaitUser(ctx context.Context, req *entity.CancellationRequest, cc provider.CancelContext, res provider.Result, metadata map[string]interface{}) queue.Result {
	instructions := res.ManualInstructions
	if instructions == nil {
		instructions = e.selector.Manual().Instructions(cc)
	}
	req.ManualInstructions = instructions
	req.Awaiting = entity.AwaitingUser

	deadline := e.now().Add(e.cfg.ManualConfirmationWindow)
	metadata["confirm_by"] = deadline.Format(time.RFC3339)

	ok, err := e.commit(ctx, req, entity.CancellationStatusProcessing, logEntry{
		Action:   "manual.instructions_issued",
		Status:   entity.LogStatusInfo,
		Message:  "waiting for the user to cancel and confirm",
		Metadata: metadata,
	}, nil)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}
	if !ok {
		return queue.Done()
	}

	payload := e.payload(req, cc)
	payload["confirm_by"] = deadline.Format(time.RFC3339)
	e.emit(ctx, events.CancellationManualRequired, payload)
	e.notify(ctx, req, events.CancellationManualRequired, payload)

	if err := dispatch(ctx, e, ManualTimeoutPayload{RequestID: req.ID.String()}, queue.Options{Delay: e.cfg.ManualConfirmationWindow}); err != nil {
		return queue.RetryWithBackoff(err)
	}
	return queue.Done()
}

func (e *Engine) handleFailure(ctx context.Context, job *queue.Job, req *entity.CancellationRequest, cc provider.CancelContext, res provider.Result, metadata map[string]interface{}) queue.Result {
	perr := res.Error
	if perr == nil {
		perr = provider.NewError(provider.CodeProviderError, "strategy returned neither success nor an error", nil)
	}

	if req.Method == entity.MethodManual && perr.Code == provider.CodeManualInterventionRequired {
		return e.awaitUser(ctx, req, cc, res, metadata)
	}

	disposition := provider.Classify(perr.Code)
	lastAttempt := job.Attempts+1 >= job.MaxAttempts

	if disposition == provider.DispositionRetry && !lastAttempt {
		code := string(perr.Code)
		message := perr.Message
		req.ErrorCode = &code
		req.ErrorMessage = &message
		req.ErrorDetails = perr.Details

		delay := queue.Backoff(job.Attempts)
		if ms, ok := retryAfterMs(perr.Details); ok && time.Duration(ms)*time.Millisecond > delay {
			delay = time.Duration(ms) * time.Millisecond
		}
		metadata["code"] = code
		metadata["retry_in_ms"] = delay.Milliseconds()

		ok, err := e.commit(ctx, req, entity.CancellationStatusProcessing, logEntry{
			Action:   "attempt.failed",
			Status:   entity.LogStatusFailure,
			Message:  fmt.Sprintf("attempt %d of %d failed: %s", req.Attempts, req.MaxAttempts, message),
			Metadata: metadata,
		}, nil)
		if err != nil {
			return queue.RetryWithBackoff(err)
		}
		if !ok {
			return queue.Done()
		}
		return queue.RetryAfter(delay, perr)
	}

	if disposition == provider.DispositionRetry {
		metadata["retries_exhausted"] = true
	}
	if _, err := e.fail(ctx, req, cc, failure{
		Err:              perr,
		Expected:         entity.CancellationStatusProcessing,
		WithInstructions: true,
		Instructions:     res.ManualInstructions,
		ManualRequired:   disposition != provider.DispositionTerminal,
		Metadata:         metadata,
	}); err != nil {
		return queue.RetryWithBackoff(err)
	}
	return queue.Fail(perr)
}

func retryAfterMs(details map[string]interface{}) (int64, bool) {
	switch v := details["retry_after_ms"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
