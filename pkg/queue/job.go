package queue

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is a unit of queued work. Type follows the "namespace.action" convention.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	AvailableAt time.Time       `json:"available_at"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Options tune a single Enqueue call. Zero values fall back to queue defaults.
type Options struct {
	Delay       time.Duration
	MaxAttempts int
}

type Stats struct {
	Pending   int64 `json:"pending"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Counters are the in-process totals since the queue was created.
type Counters struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Retried   int64 `json:"retried"`
	Failed    int64 `json:"failed"`
	InFlight  int64 `json:"in_flight"`
}

const (
	baseBackoff = time.Second
	maxBackoff  = 5 * time.Minute
)

// Backoff returns the delay before retry number n: min(1s * 2^n, 5m).
func Backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	// 2^9 seconds already exceeds the cap
	if n > 8 {
		return maxBackoff
	}
	d := baseBackoff << uint(n)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Retry asks the queue to run the job again. A zero Delay means "use Backoff".
// An Uncounted retry does not consume an attempt and is never turned into a
// terminal failure; it is for executions that did no work (e.g. lock contention).
type Retry struct {
	Delay     time.Duration
	Uncounted bool
}

// Result is what a processor reports back for one execution.
//
//	Success            -> job completed
//	!Success, no Retry -> job failed terminally
//	!Success, Retry    -> attempts++, rescheduled while attempts < max
//	!Success, Requeue  -> rescheduled, attempts unchanged
type Result struct {
	Success bool
	Retry   *Retry
	Err     error
}

func Done() Result {
	return Result{Success: true}
}

func Fail(err error) Result {
	return Result{Err: err}
}

func RetryAfter(delay time.Duration, err error) Result {
	return Result{Retry: &Retry{Delay: delay}, Err: err}
}

func RetryWithBackoff(err error) Result {
	return Result{Retry: &Retry{}, Err: err}
}

func Requeue(delay time.Duration, err error) Result {
	return Result{Retry: &Retry{Delay: delay, Uncounted: true}, Err: err}
}

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrNoProcessor        = errors.New("no processor registered for job type")
	ErrInvalidJobType     = errors.New("job type must not be empty")
	ErrQueueStopped       = errors.New("queue is stopped")
	ErrProcessorDuplicate = errors.New("processor already registered for job type")
)
