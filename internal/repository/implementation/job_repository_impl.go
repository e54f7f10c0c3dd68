package implementation

import (
	"context"
	"errors"
	"time"

	"cancelflow-be/internal/model"
	"cancelflow-be/pkg/queue"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// jobRepositoryImpl is the persisted queue.Store.
type jobRepositoryImpl struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) queue.Store {
	return &jobRepositoryImpl{db: db}
}

func (r *jobRepositoryImpl) Insert(ctx context.Context, job *queue.Job) error {
	return r.db.WithContext(ctx).Create(toJobModel(job)).Error
}

func (r *jobRepositoryImpl) Get(ctx context.Context, id string) (*queue.Job, error) {
	var m model.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, queue.ErrJobNotFound
		}
		return nil, err
	}
	return toQueueJob(&m), nil
}

// ClaimDue selects due jobs and flips them to active with a conditional update,
// so two pollers never run the same job. On PostgreSQL rows are also locked
// with SKIP LOCKED to keep pollers from contending on the same rows.
func (r *jobRepositoryImpl) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*queue.Job, error) {
	var claimed []*queue.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []model.Job
		query := tx.Where("status = ? AND available_at <= ?", string(queue.StatusPending), now).
			Order("available_at ASC, created_at ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.Find(&candidates).Error; err != nil {
			return err
		}

		for i := range candidates {
			c := &candidates[i]
			res := tx.Model(&model.Job{}).
				Where("id = ? AND status = ?", c.ID, string(queue.StatusPending)).
				Updates(map[string]interface{}{
					"status":     string(queue.StatusActive),
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				c.Status = string(queue.StatusActive)
				c.UpdatedAt = now
				claimed = append(claimed, toQueueJob(c))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRepositoryImpl) Complete(ctx context.Context, id string, attempts int, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       string(queue.StatusCompleted),
			"attempts":     attempts,
			"completed_at": at,
			"updated_at":   at,
		}).Error
}

func (r *jobRepositoryImpl) Reschedule(ctx context.Context, id string, attempts int, availableAt time.Time, lastErr string) error {
	return r.db.WithContext(ctx).Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       string(queue.StatusPending),
			"attempts":     attempts,
			"available_at": availableAt,
			"last_error":   nullableString(lastErr),
			"updated_at":   time.Now(),
		}).Error
}

func (r *jobRepositoryImpl) Fail(ctx context.Context, id string, attempts int, lastErr string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(queue.StatusFailed),
			"attempts":   attempts,
			"last_error": nullableString(lastErr),
			"updated_at": at,
		}).Error
}

func (r *jobRepositoryImpl) Requeue(ctx context.Context, id string, availableAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Job{}).
		Where("id = ? AND status = ?", id, string(queue.StatusFailed)).
		Updates(map[string]interface{}{
			"status":       string(queue.StatusPending),
			"attempts":     0,
			"available_at": availableAt,
			"updated_at":   availableAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *jobRepositoryImpl) ReleaseStale(ctx context.Context, activeBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Job{}).
		Where("status = ? AND updated_at < ?", string(queue.StatusActive), activeBefore).
		Updates(map[string]interface{}{
			"status":       string(queue.StatusPending),
			"available_at": activeBefore,
		})
	return res.RowsAffected, res.Error
}

func (r *jobRepositoryImpl) Counts(ctx context.Context) (queue.Stats, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := r.db.WithContext(ctx).Model(&model.Job{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return queue.Stats{}, err
	}

	var stats queue.Stats
	for _, row := range rows {
		switch queue.Status(row.Status) {
		case queue.StatusPending:
			stats.Pending = row.Total
		case queue.StatusActive:
			stats.Active = row.Total
		case queue.StatusCompleted:
			stats.Completed = row.Total
		case queue.StatusFailed:
			stats.Failed = row.Total
		}
	}
	return stats, nil
}

func (r *jobRepositoryImpl) ListFailed(ctx context.Context, limit int) ([]*queue.Job, error) {
	var models []model.Job
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(queue.StatusFailed)).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	jobs := make([]*queue.Job, 0, len(models))
	for i := range models {
		jobs = append(jobs, toQueueJob(&models[i]))
	}
	return jobs, nil
}

func (r *jobRepositoryImpl) PruneCompleted(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", string(queue.StatusCompleted), before).
		Delete(&model.Job{})
	return res.RowsAffected, res.Error
}

func toJobModel(job *queue.Job) *model.Job {
	return &model.Job{
		ID:          job.ID,
		Type:        job.Type,
		Data:        datatypes.JSON(job.Data),
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		AvailableAt: job.AvailableAt,
		LastError:   nullableString(job.LastError),
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
}

func toQueueJob(m *model.Job) *queue.Job {
	job := &queue.Job{
		ID:          m.ID,
		Type:        m.Type,
		Data:        []byte(m.Data),
		Status:      queue.Status(m.Status),
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		AvailableAt: m.AvailableAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		CompletedAt: m.CompletedAt,
	}
	if m.LastError != nil {
		job.LastError = *m.LastError
	}
	return job
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
