package implementation_test

import (
	"context"
	"testing"
	"time"

	"cancelflow-be/internal/repository/implementation"
	"cancelflow-be/internal/testutil"
	"cancelflow-be/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRepository_Lifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := implementation.NewJobRepository(db)
	ctx := context.Background()

	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	due := &queue.Job{ID: "job-due", Type: "cancellation.validate", Data: []byte(`{"request_id":"r1"}`), Status: queue.StatusPending, MaxAttempts: 3, AvailableAt: now.Add(-time.Second), CreatedAt: now, UpdatedAt: now}
	later := &queue.Job{ID: "job-later", Type: "cancellation.webhook_timeout", Data: []byte(`{}`), Status: queue.StatusPending, MaxAttempts: 1, AvailableAt: now.Add(5 * time.Minute), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Insert(ctx, due))
	require.NoError(t, store.Insert(ctx, later))

	claimed, err := store.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "job-due", claimed[0].ID)
	assert.Equal(t, queue.StatusActive, claimed[0].Status)
	assert.JSONEq(t, `{"request_id":"r1"}`, string(claimed[0].Data))

	// Already active jobs are not handed out twice.
	again, err := store.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, store.Reschedule(ctx, "job-due", 1, now.Add(time.Second), "rate limited"))
	job, err := store.Get(ctx, "job-due")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, job.Status)
	assert.Equal(t, "rate limited", job.LastError)

	claimed, err = store.ClaimDue(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, store.Fail(ctx, "job-due", 2, "gave up", now))

	failed, err := store.ListFailed(ctx, 5)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)

	ok, err := store.Requeue(ctx, "job-due", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Requeue(ctx, "job-later", now)
	require.NoError(t, err)
	assert.False(t, ok, "only failed jobs can be requeued")

	claimed, err = store.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, store.Complete(ctx, "job-due", 1, now))

	stats, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Pending: 1, Completed: 1}, stats)

	pruned, err := store.PruneCompleted(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	_, err = store.Get(ctx, "job-due")
	assert.ErrorIs(t, err, queue.ErrJobNotFound)
}
