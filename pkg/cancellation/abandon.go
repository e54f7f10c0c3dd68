package cancellation

import (
	"context"
	"errors"
	"fmt"

	"cancelflow-be/internal/entity"
	"cancelflow-be/pkg/provider"
	"cancelflow-be/pkg/queue"
)

// registerExhausted makes every job that owns a request state fail that request
// when the queue gives up on it, so no request is left processing with no job
// behind it.
func (e *Engine) registerExhausted() error {
	return errors.Join(
		queue.HandleExhausted(e.queue, func(ctx context.Context, job *queue.Job, p ValidatePayload, err error) {
			e.onExhausted(ctx, job, AbandonPayload{RequestID: p.RequestID}, err)
		}),
		queue.HandleExhausted(e.queue, func(ctx context.Context, job *queue.Job, p APIPayload, err error) {
			e.onExhausted(ctx, job, AbandonPayload{RequestID: p.RequestID}, err)
		}),
		queue.HandleExhausted(e.queue, func(ctx context.Context, job *queue.Job, p WebhookPayload, err error) {
			e.onExhausted(ctx, job, AbandonPayload{RequestID: p.RequestID}, err)
		}),
		queue.HandleExhausted(e.queue, func(ctx context.Context, job *queue.Job, p ManualPayload, err error) {
			e.onExhausted(ctx, job, AbandonPayload{RequestID: p.RequestID}, err)
		}),
		queue.HandleExhausted(e.queue, func(ctx context.Context, job *queue.Job, p WebAutomationPayload, err error) {
			e.onExhausted(ctx, job, AbandonPayload{RequestID: p.RequestID}, err)
		}),
		queue.HandleExhausted(e.queue, func(ctx context.Context, job *queue.Job, p WebhookTimeoutPayload, err error) {
			e.onExhausted(ctx, job, AbandonPayload{RequestID: p.RequestID, WebhookID: p.WebhookID}, err)
		}),
		queue.HandleExhausted(e.queue, func(ctx context.Context, job *queue.Job, p ManualTimeoutPayload, err error) {
			e.onExhausted(ctx, job, AbandonPayload{RequestID: p.RequestID}, err)
		}),
	)
}

func (e *Engine) onExhausted(ctx context.Context, job *queue.Job, p AbandonPayload, cause error) {
	p.DeadJob = job.Type
	p.TimedOut = errors.Is(cause, context.DeadlineExceeded)
	if cause != nil {
		p.Cause = cause.Error()
	}

	err := e.abandon(ctx, p)
	if err == nil {
		return
	}
	e.logger.Warn(module, "Abandoning request failed, scheduling another try", map[string]interface{}{
		"request_id": p.RequestID,
		"job_type":   p.DeadJob,
		"error":      err.Error(),
	})
	if err := dispatch(ctx, e, p, queue.Options{MaxAttempts: abandonMaxAttempts}); err != nil {
		e.logger.Error(module, "Request left without a job", map[string]interface{}{
			"request_id": p.RequestID,
			"job_type":   p.DeadJob,
		})
	}
}

const abandonMaxAttempts = 10

func (e *Engine) abandonJob(ctx context.Context, job *queue.Job, p AbandonPayload) queue.Result {
	if err := e.abandon(ctx, p); err != nil {
		return queue.RetryWithBackoff(err)
	}
	return queue.Done()
}

// abandon fails the request the p.DeadJob job was responsible for, if it is still in the
// state that job left it in. The lock is best effort: a timed-out handler may
// still hold it, and the conditional commit keeps the two from both writing.
func (e *Engine) abandon(ctx context.Context, p AbandonPayload) error {
	id, err := parseRequestID(p.RequestID)
	if err != nil {
		return nil
	}
	lease, err := e.acquire(ctx, id)
	switch {
	case err == nil:
		defer e.release(ctx, lease, id)
	case errors.Is(err, ErrBusy):
		e.logger.Warn(module, "Abandoning request without its lock", map[string]interface{}{
			"request_id": id.String(),
			"job_type":   p.DeadJob,
		})
	default:
		return err
	}

	req, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if req == nil || !abandons(req, p) {
		return nil
	}

	cc, err := e.cancelContext(ctx, req)
	if err != nil {
		return err
	}

	details := map[string]interface{}{"job_type": p.DeadJob}
	if p.Cause != "" {
		details["last_error"] = p.Cause
	}
	_, err = e.fail(ctx, req, cc, failure{
		Err:              abandonError(p, cc, details),
		Expected:         req.Status,
		WithInstructions: true,
		ManualRequired:   true,
		Metadata:         map[string]interface{}{"job_type": p.DeadJob, "abandoned": true},
	})
	return err
}

// abandons reports whether req is still in the state the p.DeadJob job owns.
func abandons(req *entity.CancellationRequest, p AbandonPayload) bool {
	processing := req.Status == entity.CancellationStatusProcessing
	switch p.DeadJob {
	case JobValidate:
		return req.Status == entity.CancellationStatusPending ||
			(processing && req.Attempts == 0 && req.Awaiting == entity.AwaitingNone)
	case JobAPI:
		return processing && req.Awaiting == entity.AwaitingNone && req.Method == entity.MethodAPI
	case JobWebhook:
		return processing && req.Awaiting == entity.AwaitingNone && req.Method == entity.MethodWebhook
	case JobManual:
		return processing && req.Awaiting == entity.AwaitingNone && req.Method == entity.MethodManual
	case JobWebAutomation:
		return processing && req.Awaiting == entity.AwaitingNone && req.Method == entity.MethodWebAutomation
	case JobWebhookTimeout:
		return processing && req.Awaiting == entity.AwaitingWebhook &&
			req.WebhookID != nil && *req.WebhookID == p.WebhookID
	case JobManualTimeout:
		return processing && req.Awaiting == entity.AwaitingUser
	}
	return false
}

func abandonError(p AbandonPayload, cc provider.CancelContext, details map[string]interface{}) *provider.Error {
	switch {
	case p.DeadJob == JobWebhookTimeout:
		return provider.NewError(provider.CodeWebhookTimeout,
			fmt.Sprintf("%s did not confirm the cancellation", cc.ProviderName()), details)
	case p.DeadJob == JobManualTimeout:
		return provider.NewError(provider.CodeManualInterventionRequired, "no confirmation received", details)
	case p.TimedOut:
		return provider.NewError(provider.CodeTimeout, "cancellation did not finish in time", details)
	default:
		return provider.NewError(provider.CodeManualInterventionRequired, "cancellation could not be processed automatically", details)
	}
}
