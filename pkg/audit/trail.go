package audit

import (
	"context"
	"fmt"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/internal/repository/unitofwork"
	"cancelflow-be/pkg/events"
	"cancelflow-be/pkg/queue"
)

const module = "Audit"

// Entry is a free-form audit record for jobs, webhooks and analytics.
type Entry struct {
	Kind       entity.AuditKind
	EntityType string
	EntityID   string
	Action     string
	Actor      string
	Metadata   map[string]interface{}
}

// Trail writes the per-request CancellationLog and mirrors everything to the audit sink.
type Trail struct {
	uowFactory unitofwork.RepositoryFactory
	bus        events.Bus
	logger     logger.ILogger
}

func NewTrail(uowFactory unitofwork.RepositoryFactory, bus events.Bus, log logger.ILogger) *Trail {
	return &Trail{uowFactory: uowFactory, bus: bus, logger: log}
}

// Transition appends a request log entry inside the caller's unit of work so that
// the entry commits or rolls back together with the state change it describes.
func (t *Trail) Transition(
	ctx context.Context,
	uow unitofwork.UnitOfWork,
	request *entity.CancellationRequest,
	action string,
	status entity.LogStatus,
	message string,
	metadata map[string]interface{},
) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	entry := &entity.CancellationLog{
		RequestID: request.ID,
		Action:    action,
		Status:    status,
		Message:   message,
		Metadata:  metadata,
	}
	if err := uow.CancellationLogRepository().Append(ctx, entry); err != nil {
		return fmt.Errorf("append cancellation log: %w", err)
	}

	mirror := map[string]interface{}{
		"sequence": entry.Sequence,
		"status":   string(status),
		"message":  message,
		"request":  string(request.Status),
	}
	for k, v := range metadata {
		if _, taken := mirror[k]; !taken {
			mirror[k] = v
		}
	}

	if err := uow.AuditLogRepository().Create(ctx, &entity.AuditLog{
		Kind:       entity.AuditKindTransition,
		EntityType: "cancellation_request",
		EntityID:   request.ID.String(),
		Action:     action,
		Actor:      "workflow",
		Metadata:   mirror,
	}); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// Record stores a standalone audit entry. Failures are logged, never returned.
func (t *Trail) Record(ctx context.Context, entry Entry) {
	uow := t.uowFactory.NewUnitOfWork(ctx)
	err := uow.AuditLogRepository().Create(ctx, &entity.AuditLog{
		Kind:       entry.Kind,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Actor:      entry.Actor,
		Metadata:   entry.Metadata,
	})
	if err != nil {
		t.logger.Error(module, "Failed to write audit entry", map[string]interface{}{
			"action": entry.Action,
			"entity": entry.EntityID,
			"error":  err.Error(),
		})
	}
}

// Track records an analytics event and publishes it on the bus.
func (t *Trail) Track(ctx context.Context, name string, props map[string]interface{}) {
	if props == nil {
		props = map[string]interface{}{}
	}
	entityID, _ := props["request_id"].(string)

	t.Record(ctx, Entry{
		Kind:       entity.AuditKindAnalytics,
		EntityType: "analytics",
		EntityID:   entityID,
		Action:     name,
		Actor:      "system",
		Metadata:   props,
	})

	payload := map[string]interface{}{"name": name, "properties": props, "tracked_at": time.Now().UTC()}
	if err := t.bus.Emit(ctx, events.New(events.AnalyticsTracked, payload)); err != nil {
		t.logger.Warn(module, "Failed to emit analytics event", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
	}
}

// JobSettled implements queue.Observer.
func (t *Trail) JobSettled(ctx context.Context, job *queue.Job, outcome queue.Outcome, err error) {
	metadata := map[string]interface{}{
		"type":         job.Type,
		"outcome":      string(outcome),
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
	}
	if err != nil {
		metadata["error"] = err.Error()
	}

	// Settlement happens after the handler's own context may be gone
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	t.Record(recordCtx, Entry{
		Kind:       entity.AuditKindJob,
		EntityType: "job",
		EntityID:   job.ID,
		Action:     "job." + string(outcome),
		Actor:      "queue",
		Metadata:   metadata,
	})
}
