package implementation_test

import (
	"context"
	"testing"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/repository/contract"
	"cancelflow-be/internal/repository/implementation"
	"cancelflow-be/internal/repository/specification"
	"cancelflow-be/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(subscriptionID, userID uuid.UUID) *entity.CancellationRequest {
	return &entity.CancellationRequest{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		UserID:         userID,
		Method:         entity.MethodAPI,
		Status:         entity.CancellationStatusPending,
		MaxAttempts:    3,
	}
}

func TestCancellationRequestRepository_SingleActivePerSubscription(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := implementation.NewCancellationRequestRepository(db)
	ctx := context.Background()

	sub := testutil.SeedSubscription(t, db, nil, "ext-1")

	first := newRequest(sub.ID, sub.UserID)
	require.NoError(t, repo.Create(ctx, first))

	second := newRequest(sub.ID, sub.UserID)
	err := repo.Create(ctx, second)
	assert.ErrorIs(t, err, contract.ErrActiveRequestExists)

	// Once the first request reaches a terminal state a new one is allowed.
	first.Status = entity.CancellationStatusFailed
	ok, err := repo.UpdateIfStatus(ctx, first, entity.CancellationStatusPending)
	require.NoError(t, err)
	require.True(t, ok)

	third := newRequest(sub.ID, sub.UserID)
	require.NoError(t, repo.Create(ctx, third))

	active, err := repo.Count(ctx, specification.BySubscriptionID{SubscriptionID: sub.ID}, specification.ActiveRequest())
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)
}

func TestCancellationRequestRepository_UpdateIfStatusIsConditional(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := implementation.NewCancellationRequestRepository(db)
	ctx := context.Background()

	sub := testutil.SeedSubscription(t, db, nil, "ext-2")
	req := newRequest(sub.ID, sub.UserID)
	require.NoError(t, repo.Create(ctx, req))

	req.Status = entity.CancellationStatusProcessing
	ok, err := repo.UpdateIfStatus(ctx, req, entity.CancellationStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale writer still believing the request is pending loses.
	stale := *req
	stale.Status = entity.CancellationStatusFailed
	ok, err = repo.UpdateIfStatus(ctx, &stale, entity.CancellationStatusPending)
	require.NoError(t, err)
	assert.False(t, ok)

	code := "API-1-ABC"
	req.Status = entity.CancellationStatusCompleted
	req.ConfirmationCode = &code
	req.ManualInstructions = &entity.ManualInstructionSet{Title: "unused", Steps: []entity.InstructionStep{{Order: 1, Title: "x"}}}
	req.ErrorDetails = map[string]interface{}{"attempt": float64(1)}
	ok, err = repo.UpdateIfStatus(ctx, req, entity.CancellationStatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.FindOne(ctx, specification.ByID{ID: req.ID})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entity.CancellationStatusCompleted, found.Status)
	assert.Equal(t, code, *found.ConfirmationCode)
	require.NotNil(t, found.ManualInstructions)
	assert.Equal(t, "unused", found.ManualInstructions.Title)
	assert.Equal(t, float64(1), found.ErrorDetails["attempt"])
}

func TestCancellationRequestRepository_FindOneMissing(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := implementation.NewCancellationRequestRepository(db)

	found, err := repo.FindOne(context.Background(), specification.ByID{ID: uuid.New()})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCancellationRequestRepository_CountByStatus(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := implementation.NewCancellationRequestRepository(db)
	ctx := context.Background()

	statuses := []entity.CancellationStatus{
		entity.CancellationStatusPending,
		entity.CancellationStatusFailed,
		entity.CancellationStatusFailed,
		entity.CancellationStatusCompleted,
	}
	for i, status := range statuses {
		sub := testutil.SeedSubscription(t, db, nil, uuid.NewString())
		req := newRequest(sub.ID, sub.UserID)
		req.Status = status
		require.NoError(t, repo.Create(ctx, req), "row %d", i)
	}

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[entity.CancellationStatusPending])
	assert.EqualValues(t, 2, counts[entity.CancellationStatusFailed])
	assert.EqualValues(t, 1, counts[entity.CancellationStatusCompleted])
	assert.EqualValues(t, 0, counts[entity.CancellationStatusProcessing])
}

func TestCancellationLogRepository_AppendAssignsSequence(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := implementation.NewCancellationLogRepository(db)
	ctx := context.Background()

	requestID := uuid.New()
	otherID := uuid.New()

	for _, action := range []string{"request.created", "validate.passed", "strategy.dispatched"} {
		require.NoError(t, repo.Append(ctx, &entity.CancellationLog{
			RequestID: requestID,
			Action:    action,
			Status:    entity.LogStatusInfo,
			Metadata:  map[string]interface{}{"action": action},
		}))
	}
	require.NoError(t, repo.Append(ctx, &entity.CancellationLog{RequestID: otherID, Action: "request.created", Status: entity.LogStatusInfo}))

	logs, err := repo.FindByRequest(ctx, specification.ByRequestID{RequestID: requestID})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for i, l := range logs {
		assert.EqualValues(t, i+1, l.Sequence)
	}
	assert.Equal(t, "strategy.dispatched", logs[2].Action)
	assert.Equal(t, "validate.passed", logs[1].Metadata["action"])

	others, err := repo.FindByRequest(ctx, specification.ByRequestID{RequestID: otherID})
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.EqualValues(t, 1, others[0].Sequence)
}
