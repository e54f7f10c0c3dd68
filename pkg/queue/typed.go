package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Payload is implemented by every typed job payload. The job type string is the
// discriminator: one payload struct per job type.
type Payload interface {
	JobType() string
}

// Dispatch enqueues a typed payload under its own job type.
func Dispatch[P Payload](ctx context.Context, q *Queue, payload P, opts Options) (string, error) {
	return q.Enqueue(ctx, payload.JobType(), payload, opts)
}

// Handle registers fn for P's job type and decodes job data into P before calling it.
// A payload that does not decode is a terminal failure.
func Handle[P Payload](q *Queue, fn func(ctx context.Context, job *Job, payload P) Result) error {
	var zero P
	jobType := zero.JobType()
	return q.RegisterProcessor(jobType, func(ctx context.Context, job *Job) Result {
		var payload P
		if err := json.Unmarshal(job.Data, &payload); err != nil {
			return Fail(fmt.Errorf("decode %s payload: %w", jobType, err))
		}
		return fn(ctx, job, payload)
	})
}

// HandleExhausted registers fn as the dead-letter handler for P's job type.
// Jobs whose payload does not decode are skipped.
func HandleExhausted[P Payload](q *Queue, fn func(ctx context.Context, job *Job, payload P, err error)) error {
	var zero P
	return q.OnExhausted(zero.JobType(), func(ctx context.Context, job *Job, err error) {
		var payload P
		if json.Unmarshal(job.Data, &payload) != nil {
			return
		}
		fn(ctx, job, payload, err)
	})
}
