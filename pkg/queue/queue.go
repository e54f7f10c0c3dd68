package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cancelflow-be/internal/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

const module = "JobQueue"

var tracer = otel.Tracer("cancelflow/queue")

// Handler processes one job execution.
type Handler func(ctx context.Context, job *Job) Result

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetried   Outcome = "retried"
	OutcomeFailed    Outcome = "failed"
)

// Observer is told about every settled execution (audit trail hook).
type Observer interface {
	JobSettled(ctx context.Context, job *Job, outcome Outcome, err error)
}

// ExhaustedHandler runs once a job has failed for good, whether the processor
// gave up, the attempts ran out, or the last execution timed out or panicked.
// err is the error of the final execution.
type ExhaustedHandler func(ctx context.Context, job *Job, err error)

type Config struct {
	Concurrency        int
	PollInterval       time.Duration
	JobTimeout         time.Duration
	DefaultMaxAttempts int
	// StaleAfter is how long a job may stay active before Start hands it back.
	StaleAfter time.Duration
	Now        func() time.Time
	Observer   Observer
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = 3
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * c.JobTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Queue is the single logical work queue of the process. It is safe for
// concurrent use; processors must be registered before Start.
type Queue struct {
	store  Store
	logger logger.ILogger
	cfg    Config

	mu         sync.RWMutex
	processors map[string]Handler
	exhausted  map[string]ExhaustedHandler

	sem  *semaphore.Weighted
	wake chan struct{}

	cancel    context.CancelFunc
	loopDone  chan struct{}
	inflight  sync.WaitGroup
	startOnce sync.Once
	stopped   atomic.Bool

	processed atomic.Int64
	succeeded atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64
}

func New(store Store, log logger.ILogger, cfg Config) *Queue {
	cfg.applyDefaults()
	return &Queue{
		store:      store,
		logger:     log,
		cfg:        cfg,
		processors: make(map[string]Handler),
		exhausted:  make(map[string]ExhaustedHandler),
		sem:        semaphore.NewWeighted(int64(cfg.Concurrency)),
		wake:       make(chan struct{}, 1),
	}
}

func (q *Queue) RegisterProcessor(jobType string, handler Handler) error {
	if jobType == "" {
		return ErrInvalidJobType
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.processors[jobType]; exists {
		return fmt.Errorf("%w: %s", ErrProcessorDuplicate, jobType)
	}
	q.processors[jobType] = handler
	return nil
}

// OnExhausted registers the dead-letter handler for jobType.
func (q *Queue) OnExhausted(jobType string, handler ExhaustedHandler) error {
	if jobType == "" {
		return ErrInvalidJobType
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.exhausted[jobType]; exists {
		return fmt.Errorf("%w: %s", ErrProcessorDuplicate, jobType)
	}
	q.exhausted[jobType] = handler
	return nil
}

func (q *Queue) exhaustedHandler(jobType string) ExhaustedHandler {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.exhausted[jobType]
}

func (q *Queue) processor(jobType string) Handler {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.processors[jobType]
}

// Enqueue stores a new job and returns its id. payload is JSON encoded.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload interface{}, opts Options) (string, error) {
	if jobType == "" {
		return "", ErrInvalidJobType
	}
	if q.stopped.Load() {
		return "", ErrQueueStopped
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", jobType, err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.cfg.DefaultMaxAttempts
	}

	now := q.cfg.Now()
	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Data:        data,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		AvailableAt: now.Add(opts.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.store.Insert(ctx, job); err != nil {
		return "", fmt.Errorf("insert %s job: %w", jobType, err)
	}

	q.logger.Debug(module, "Job enqueued", map[string]interface{}{
		"job_id":       job.ID,
		"type":         jobType,
		"delay":        opts.Delay.String(),
		"max_attempts": maxAttempts,
	})

	if opts.Delay <= 0 {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return job.ID, nil
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return q.store.Counts(ctx)
}

func (q *Queue) Counters() Counters {
	return Counters{
		Processed: q.processed.Load(),
		Succeeded: q.succeeded.Load(),
		Retried:   q.retried.Load(),
		Failed:    q.failed.Load(),
		InFlight:  q.active.Load(),
	}
}

func (q *Queue) FailedJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.store.ListFailed(ctx, limit)
}

// RetryFailedJob puts a failed job back on the queue. It reports false when the
// job does not exist or is not in the failed state.
func (q *Queue) RetryFailedJob(ctx context.Context, id string) (bool, error) {
	ok, err := q.store.Requeue(ctx, id, q.cfg.Now())
	if err != nil {
		return false, err
	}
	if ok {
		q.logger.Info(module, "Failed job requeued", map[string]interface{}{"job_id": id})
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return ok, nil
}

func (q *Queue) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return q.store.PruneCompleted(ctx, q.cfg.Now().Add(-olderThan))
}

// Start launches the polling loop. It returns immediately.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		if n, err := q.store.ReleaseStale(ctx, q.cfg.Now().Add(-q.cfg.StaleAfter)); err != nil {
			q.logger.Warn(module, "Failed to release stale jobs", map[string]interface{}{"error": err.Error()})
		} else if n > 0 {
			q.logger.Warn(module, "Released stale active jobs", map[string]interface{}{"count": n})
		}

		loopCtx, cancel := context.WithCancel(ctx)
		q.cancel = cancel
		q.loopDone = make(chan struct{})
		go q.loop(loopCtx)

		q.logger.Info(module, "Workers started", map[string]interface{}{
			"concurrency":   q.cfg.Concurrency,
			"poll_interval": q.cfg.PollInterval.String(),
		})
	})
}

// Stop stops polling and waits for in-flight jobs until ctx expires.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopped.Store(true)
	if q.cancel != nil {
		q.cancel()
		<-q.loopDone
	}

	drained := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		q.logger.Info(module, "Workers drained", nil)
		return nil
	case <-ctx.Done():
		q.logger.Warn(module, "Shutdown deadline hit with jobs in flight", map[string]interface{}{"in_flight": q.active.Load()})
		return ctx.Err()
	}
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.loopDone)

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		q.dispatch(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-q.wake:
		}
	}
}

func (q *Queue) dispatch(ctx context.Context) {
	free := q.cfg.Concurrency - int(q.active.Load())
	if free <= 0 {
		return
	}

	jobs, err := q.store.ClaimDue(ctx, q.cfg.Now(), free)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			q.logger.Error(module, "Failed to claim due jobs", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	for _, job := range jobs {
		if err := q.sem.Acquire(ctx, 1); err != nil {
			// shutting down: hand the claimed job back untouched
			_ = q.store.Reschedule(context.WithoutCancel(ctx), job.ID, job.Attempts, q.cfg.Now(), job.LastError)
			continue
		}
		q.active.Add(1)
		q.inflight.Add(1)
		go func(job *Job) {
			defer q.inflight.Done()
			defer q.active.Add(-1)
			defer q.sem.Release(1)
			// in-flight jobs survive Stop so they can drain
			q.execute(context.WithoutCancel(ctx), job)
		}(job)
	}
}

// ProcessDue claims and runs every due job synchronously until none are left.
// It does not need Start and is meant for tests and one-shot drains.
func (q *Queue) ProcessDue(ctx context.Context) (int, error) {
	total := 0
	for {
		jobs, err := q.store.ClaimDue(ctx, q.cfg.Now(), q.cfg.Concurrency)
		if err != nil {
			return total, err
		}
		if len(jobs) == 0 {
			return total, nil
		}
		for _, job := range jobs {
			q.active.Add(1)
			q.execute(ctx, job)
			q.active.Add(-1)
			total++
		}
	}
}

func (q *Queue) execute(ctx context.Context, job *Job) {
	ctx, span := tracer.Start(ctx, "queue.job "+job.Type)
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", job.Type),
		attribute.Int("job.attempt", job.Attempts+1),
	)

	q.processed.Add(1)

	var res Result
	if handler := q.processor(job.Type); handler == nil {
		res = Fail(fmt.Errorf("%w: %s", ErrNoProcessor, job.Type))
	} else {
		res = q.invoke(ctx, handler, job)
	}

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	q.settle(ctx, job, res)
}

// invoke runs the handler under the job timeout and turns panics into retryable failures.
func (q *Queue) invoke(ctx context.Context, handler Handler, job *Job) Result {
	ctx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				q.logger.Error(module, "Processor panicked", map[string]interface{}{
					"job_id": job.ID,
					"type":   job.Type,
					"panic":  fmt.Sprint(r),
				})
				done <- RetryWithBackoff(fmt.Errorf("processor panic: %v", r))
			}
		}()
		done <- handler(ctx, job)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return RetryWithBackoff(fmt.Errorf("job exceeded %s: %w", q.cfg.JobTimeout, ctx.Err()))
	}
}

func (q *Queue) settle(ctx context.Context, job *Job, res Result) {
	now := q.cfg.Now()
	attempts := job.Attempts + 1
	uncounted := res.Retry != nil && res.Retry.Uncounted
	if uncounted {
		attempts = job.Attempts
	}
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}

	details := map[string]interface{}{
		"job_id":       job.ID,
		"type":         job.Type,
		"attempt":      attempts,
		"max_attempts": job.MaxAttempts,
	}

	var (
		outcome Outcome
		err     error
	)
	switch {
	case res.Success:
		outcome = OutcomeCompleted
		err = q.store.Complete(ctx, job.ID, attempts, now)
		q.succeeded.Add(1)
		q.logger.Debug(module, "Job completed", details)

	case uncounted:
		outcome = OutcomeRetried
		delay := res.Retry.Delay
		if delay <= 0 {
			delay = baseBackoff
		}
		err = q.store.Reschedule(ctx, job.ID, attempts, now.Add(delay), errMsg)
		q.retried.Add(1)
		details["delay"] = delay.String()
		details["error"] = errMsg
		q.logger.Debug(module, "Job requeued", details)

	case res.Retry != nil && attempts < job.MaxAttempts:
		outcome = OutcomeRetried
		delay := res.Retry.Delay
		if delay <= 0 {
			delay = Backoff(job.Attempts)
		}
		err = q.store.Reschedule(ctx, job.ID, attempts, now.Add(delay), errMsg)
		q.retried.Add(1)
		details["delay"] = delay.String()
		details["error"] = errMsg
		q.logger.Warn(module, "Job failed, retry scheduled", details)

	default:
		outcome = OutcomeFailed
		err = q.store.Fail(ctx, job.ID, attempts, errMsg, now)
		q.failed.Add(1)
		details["error"] = errMsg
		details["retryable"] = res.Retry != nil
		q.logger.Error(module, "Job failed", details)
	}

	if err != nil {
		q.logger.Error(module, "Failed to persist job outcome", map[string]interface{}{
			"job_id":  job.ID,
			"outcome": string(outcome),
			"error":   err.Error(),
		})
	}

	settled := *job
	settled.Attempts = attempts
	if outcome == OutcomeFailed {
		if handler := q.exhaustedHandler(job.Type); handler != nil {
			q.runExhausted(ctx, handler, &settled, res.Err)
		}
	}
	if q.cfg.Observer != nil {
		q.cfg.Observer.JobSettled(ctx, &settled, outcome, res.Err)
	}
}

func (q *Queue) runExhausted(ctx context.Context, handler ExhaustedHandler, job *Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error(module, "Exhausted handler panicked", map[string]interface{}{
				"job_id": job.ID,
				"type":   job.Type,
				"panic":  fmt.Sprint(r),
			})
		}
	}()
	handler(ctx, job, err)
}
