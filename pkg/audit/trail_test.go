package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/internal/repository/specification"
	"cancelflow-be/internal/repository/unitofwork"
	"cancelflow-be/internal/testutil"
	"cancelflow-be/pkg/audit"
	"cancelflow-be/pkg/events"
	"cancelflow-be/pkg/queue"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrail_TransitionOrdersEntriesAndMirrorsAudit(t *testing.T) {
	db := testutil.NewTestDB(t)
	factory := unitofwork.NewRepositoryFactory(db)
	bus := events.NewWatermillBus(logger.NewNopLogger())
	defer bus.Close()
	trail := audit.NewTrail(factory, bus, logger.NewNopLogger())
	ctx := context.Background()

	sub := testutil.SeedSubscription(t, db, nil, "ext-audit")
	request := &entity.CancellationRequest{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Method:         entity.MethodAPI,
		Status:         entity.CancellationStatusPending,
		MaxAttempts:    3,
	}

	uow := factory.NewUnitOfWork(ctx)
	require.NoError(t, uow.CancellationRequestRepository().Create(ctx, request))

	actions := []string{"validate", "dispatch", "complete"}
	for _, action := range actions {
		require.NoError(t, trail.Transition(ctx, uow, request, action, entity.LogStatusInfo, action, map[string]interface{}{"k": action}))
	}

	logs, err := uow.CancellationLogRepository().FindByRequest(ctx, specification.ByRequestID{RequestID: request.ID})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for i, log := range logs {
		assert.Equal(t, actions[i], log.Action)
		assert.EqualValues(t, i+1, log.Sequence)
	}

	mirrored, err := uow.AuditLogRepository().Count(ctx, specification.ByEntity{EntityType: "cancellation_request", EntityID: request.ID.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 3, mirrored)
}

func TestTrail_TransitionRollsBackWithUnitOfWork(t *testing.T) {
	db := testutil.NewTestDB(t)
	factory := unitofwork.NewRepositoryFactory(db)
	bus := events.NewWatermillBus(logger.NewNopLogger())
	defer bus.Close()
	trail := audit.NewTrail(factory, bus, logger.NewNopLogger())
	ctx := context.Background()

	sub := testutil.SeedSubscription(t, db, nil, "ext-rollback")
	request := &entity.CancellationRequest{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Method:         entity.MethodManual,
		Status:         entity.CancellationStatusPending,
		MaxAttempts:    3,
	}
	require.NoError(t, factory.NewUnitOfWork(ctx).CancellationRequestRepository().Create(ctx, request))

	uow := factory.NewUnitOfWork(ctx)
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, trail.Transition(ctx, uow, request, "validate", entity.LogStatusInfo, "x", nil))
	require.NoError(t, uow.Rollback())

	count, err := factory.NewUnitOfWork(ctx).CancellationLogRepository().Count(ctx, specification.ByRequestID{RequestID: request.ID})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTrail_TrackEmitsAnalyticsEvent(t *testing.T) {
	db := testutil.NewTestDB(t)
	factory := unitofwork.NewRepositoryFactory(db)
	bus := events.NewWatermillBus(logger.NewNopLogger())
	defer bus.Close()
	trail := audit.NewTrail(factory, bus, logger.NewNopLogger())

	received := make(chan events.Event, 1)
	require.NoError(t, bus.On(events.AnalyticsTracked, func(ctx context.Context, event events.Event) error {
		received <- event
		return nil
	}))

	trail.Track(context.Background(), "cancellation_completed", map[string]interface{}{"request_id": "r-9"})

	select {
	case event := <-received:
		assert.Equal(t, "cancellation_completed", event.Payload()["name"])
	case <-time.After(2 * time.Second):
		t.Fatal("analytics event not emitted")
	}

	count, err := factory.NewUnitOfWork(context.Background()).AuditLogRepository().Count(context.Background(), specification.ByEntity{EntityType: "analytics", EntityID: "r-9"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestTrail_JobSettled(t *testing.T) {
	db := testutil.NewTestDB(t)
	factory := unitofwork.NewRepositoryFactory(db)
	bus := events.NewWatermillBus(logger.NewNopLogger())
	defer bus.Close()
	trail := audit.NewTrail(factory, bus, logger.NewNopLogger())

	job := &queue.Job{ID: "job-1", Type: "cancellation.api", Attempts: 2, MaxAttempts: 3}
	trail.JobSettled(context.Background(), job, queue.OutcomeRetried, errors.New("rate limited"))

	entries, err := factory.NewUnitOfWork(context.Background()).AuditLogRepository().FindAll(context.Background(), specification.ByEntity{EntityType: "job", EntityID: "job-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job.retried", entries[0].Action)
	assert.Equal(t, "rate limited", entries[0].Metadata["error"])
}
