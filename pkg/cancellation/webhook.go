package cancellation

import (
	"context"
	"fmt"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/repository/specification"
	"cancelflow-be/pkg/audit"
	"cancelflow-be/pkg/provider"
	"cancelflow-be/pkg/queue"
	"cancelflow-be/pkg/webhook"
)

// AcceptWebhook turns an accepted webhook into a queue job so matching and
// state changes happen under the same worker and lock rules as every other step.
// It is the ingestion sink: an error here makes the provider redeliver.
func (e *Engine) AcceptWebhook(ctx context.Context, event webhook.ExtractedData) error {
	return dispatch(ctx, e, WebhookReceivedPayload{Event: event}, queue.Options{})
}

func (e *Engine) webhookTimeout(ctx context.Context, job *queue.Job, p WebhookTimeoutPayload) queue.Result {
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

	if req.Status != entity.CancellationStatusProcessing || req.Awaiting != entity.AwaitingWebhook ||
		req.WebhookID == nil || *req.WebhookID != p.WebhookID {
		e.logger.Debug(module, "Webhook timeout no longer applies", map[string]interface{}{
			"request_id": id.String(),
			"status":     string(req.Status),
		})
		return queue.Done()
	}

	now := e.now()
	if req.WebhookExpiresAt != nil && now.Before(*req.WebhookExpiresAt) {
		return queue.RetryAfter(req.WebhookExpiresAt.Sub(now), nil)
	}

	cc, err := e.cancelContext(ctx, req)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}

	timeoutErr := provider.NewError(provider.CodeWebhookTimeout,
		fmt.Sprintf("%s did not confirm the cancellation within %s", cc.ProviderName(), e.cfg.WebhookTimeout),
		map[string]interface{}{"webhook_id": p.WebhookID})

	if _, err := e.fail(ctx, req, cc, failure{
		Err:              timeoutErr,
		Expected:         entity.CancellationStatusProcessing,
		WithInstructions: true,
		ManualRequired:   true,
		Metadata:         map[string]interface{}{"webhook_id": p.WebhookID},
	}); err != nil {
		return queue.RetryWithBackoff(err)
	}
	return queue.Done()
}

func (e *Engine) webhookReceived(ctx context.Context, job *queue.Job, p WebhookReceivedPayload) queue.Result {
	event := p.Event

	match, err := e.matchWebhook(ctx, event)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}
	if match == nil {
		e.trail.Record(ctx, audit.Entry{
			Kind:       entity.AuditKindWebhook,
			EntityType: "webhook",
			EntityID:   event.DedupeKey(),
			Action:     "webhook.unmatched",
			Actor:      event.Provider,
			Metadata:   event.ToMap(),
		})
		return queue.Done()
	}

	lease, err := e.acquire(ctx, match.ID)
	if err != nil {
		return lockedResult(err)
	}
	defer e.release(ctx, lease, match.ID)

	req, err := e.load(ctx, match.ID)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}

	metadata := map[string]interface{}{
		"provider":       event.Provider,
		"event_type":     event.EventType,
		"webhook_status": string(event.Status),
		"dedupe_key":     event.DedupeKey(),
	}
	if event.CorrelationID != "" {
		metadata["correlation_id"] = event.CorrelationID
	}

	if req.Status != entity.CancellationStatusProcessing || req.Awaiting != entity.AwaitingWebhook {
		action := "webhook.unexpected"
		message := "webhook ignored, request is not waiting for one"
		switch req.Status {
		case entity.CancellationStatusCompleted:
			action, message = "webhook.duplicate", "webhook for an already completed request ignored"
		case entity.CancellationStatusFailed:
			action, message = "webhook.late", "webhook arrived after the request had failed"
		}
		if err := e.note(ctx, req, logEntry{Action: action, Status: entity.LogStatusInfo, Message: message, Metadata: metadata}, nil); err != nil {
			return queue.RetryWithBackoff(err)
		}
		return queue.Done()
	}

	cc, err := e.cancelContext(ctx, req)
	if err != nil {
		return queue.RetryWithBackoff(err)
	}

	switch event.Status {
	case webhook.StatusCancelled:
		code, _ := event.Metadata["confirmation_code"].(string)
		if code == "" {
			code = provider.ConfirmationCode("WH", e.now())
		}
		metadata["source"] = "webhook"
		if _, err := e.complete(ctx, req, cc, completion{
			ConfirmationCode: code,
			EffectiveDate:    event.EffectiveDate,
			Message:          fmt.Sprintf("%s confirmed the cancellation", cc.ProviderName()),
			Metadata:         metadata,
		}); err != nil {
			return queue.RetryWithBackoff(err)
		}

	case webhook.StatusFailed:
		if _, err := e.fail(ctx, req, cc, failure{
			Err: provider.NewError(provider.CodeManualInterventionRequired,
				fmt.Sprintf("%s reported that the cancellation did not go through", cc.ProviderName()), metadata),
			Expected:         entity.CancellationStatusProcessing,
			WithInstructions: true,
			ManualRequired:   true,
			Metadata:         metadata,
		}); err != nil {
			return queue.RetryWithBackoff(err)
		}

	default:
		if err := e.note(ctx, req, logEntry{
			Action:   "webhook.progress",
			Status:   entity.LogStatusInfo,
			Message:  fmt.Sprintf("%s sent %s", cc.ProviderName(), event.EventType),
			Metadata: metadata,
		}, nil); err != nil {
			return queue.RetryWithBackoff(err)
		}
	}
	return queue.Done()
}

// matchWebhook finds the request an event belongs to: by correlation id first,
// then by the provider subscription id.
func (e *Engine) matchWebhook(ctx context.Context, event webhook.ExtractedData) (*entity.CancellationRequest, error) {
	uow := e.uowFactory.NewUnitOfWork(ctx)
	requests := uow.CancellationRequestRepository()

	if event.CorrelationID != "" {
		req, err := requests.FindOne(ctx, specification.ByWebhookID{WebhookID: event.CorrelationID})
		if err != nil || req != nil {
			return req, err
		}
	}
	if event.SubscriptionID == "" {
		return nil, nil
	}

	specs := []specification.Specification{specification.ByExternalID{ExternalID: event.SubscriptionID}}
	if p, ok := e.registry.ByName(event.Provider); ok {
		specs = append(specs, specification.Filter("provider_id", p.ID))
	}
	sub, err := uow.SubscriptionRepository().FindOne(ctx, specs...)
	if err != nil || sub == nil {
		return nil, err
	}

	req, err := requests.FindOne(ctx, specification.BySubscriptionID{SubscriptionID: sub.ID}, specification.AwaitingWebhook{})
	if err != nil || req != nil {
		return req, err
	}
	return requests.FindOne(ctx,
		specification.BySubscriptionID{SubscriptionID: sub.ID},
		specification.ByStatus{Statuses: []entity.CancellationStatus{entity.CancellationStatusCompleted, entity.CancellationStatusFailed}},
		specification.OrderBy{Field: "updated_at", Desc: true},
	)
}

// webhookDeadline is exposed for status reporting.
func webhookDeadline(req *entity.CancellationRequest) *time.Time {
	if req.Awaiting != entity.AwaitingWebhook {
		return nil
	}
	return req.WebhookExpiresAt
}
