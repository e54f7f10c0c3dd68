package queue

import (
	"context"
	"time"
)

// Store persists jobs. Implementations must make ClaimDue safe against two
// callers claiming the same job.
type Store interface {
	Insert(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// ClaimDue moves up to limit due pending jobs to active and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Job, error)
	Complete(ctx context.Context, id string, attempts int, at time.Time) error
	Reschedule(ctx context.Context, id string, attempts int, availableAt time.Time, lastErr string) error
	Fail(ctx context.Context, id string, attempts int, lastErr string, at time.Time) error
	// Requeue moves a failed job back to pending with a fresh attempt budget.
	Requeue(ctx context.Context, id string, availableAt time.Time) (bool, error)
	// ReleaseStale returns jobs left active by a crashed worker to pending.
	ReleaseStale(ctx context.Context, activeBefore time.Time) (int64, error)
	Counts(ctx context.Context) (Stats, error)
	ListFailed(ctx context.Context, limit int) ([]*Job, error)
	PruneCompleted(ctx context.Context, before time.Time) (int64, error)
}
