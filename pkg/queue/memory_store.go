package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps jobs in process memory. Used by tests and QUEUE_STORE=memory.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Insert(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Job
	for _, job := range s.jobs {
		if job.Status == StatusPending && !job.AvailableAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].AvailableAt.Equal(due[j].AvailableAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].AvailableAt.Before(due[j].AvailableAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*Job, 0, len(due))
	for _, job := range due {
		job.Status = StatusActive
		job.UpdatedAt = now
		cp := *job
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *MemoryStore) update(id string, fn func(job *Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, id string, attempts int, at time.Time) error {
	return s.update(id, func(job *Job) {
		job.Status = StatusCompleted
		job.Attempts = attempts
		job.UpdatedAt = at
		job.CompletedAt = &at
	})
}

func (s *MemoryStore) Reschedule(ctx context.Context, id string, attempts int, availableAt time.Time, lastErr string) error {
	return s.update(id, func(job *Job) {
		job.Status = StatusPending
		job.Attempts = attempts
		job.AvailableAt = availableAt
		job.LastError = lastErr
		job.UpdatedAt = time.Now()
	})
}

func (s *MemoryStore) Fail(ctx context.Context, id string, attempts int, lastErr string, at time.Time) error {
	return s.update(id, func(job *Job) {
		job.Status = StatusFailed
		job.Attempts = attempts
		job.LastError = lastErr
		job.UpdatedAt = at
	})
}

func (s *MemoryStore) Requeue(ctx context.Context, id string, availableAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != StatusFailed {
		return false, nil
	}
	job.Status = StatusPending
	job.Attempts = 0
	job.AvailableAt = availableAt
	job.UpdatedAt = availableAt
	return true, nil
}

func (s *MemoryStore) ReleaseStale(ctx context.Context, activeBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, job := range s.jobs {
		if job.Status == StatusActive && job.UpdatedAt.Before(activeBefore) {
			job.Status = StatusPending
			job.AvailableAt = activeBefore
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Counts(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats Stats
	for _, job := range s.jobs {
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusActive:
			stats.Active++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *MemoryStore) ListFailed(ctx context.Context, limit int) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var failed []*Job
	for _, job := range s.jobs {
		if job.Status == StatusFailed {
			cp := *job
			failed = append(failed, &cp)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].UpdatedAt.After(failed[j].UpdatedAt) })
	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (s *MemoryStore) PruneCompleted(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, job := range s.jobs {
		if job.Status == StatusCompleted && job.CompletedAt != nil && job.CompletedAt.Before(before) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}
