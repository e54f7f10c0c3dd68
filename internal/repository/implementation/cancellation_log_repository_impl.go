package implementation

import (
	"context"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/mapper"
	"cancelflow-be/internal/model"
	"cancelflow-be/internal/repository/contract"
	"cancelflow-be/internal/repository/scope"
	"cancelflow-be/internal/repository/specification"

	"gorm.io/gorm"
)

const maxSequenceAttempts = 3

type cancellationLogRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CancellationMapper
}

func NewCancellationLogRepository(db *gorm.DB) contract.CancellationLogRepository {
	return &cancellationLogRepositoryImpl{db: db, mapper: mapper.NewCancellationMapper()}
}

func (r *cancellationLogRepositoryImpl) Append(ctx context.Context, log *entity.CancellationLog) error {
	var err error
	for i := 0; i < maxSequenceAttempts; i++ {
		var last int64
		if err = r.db.WithContext(ctx).Model(&model.CancellationLog{}).
			Where("request_id = ?", log.RequestID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&last).Error; err != nil {
			return err
		}

		m := r.mapper.LogToModel(log)
		m.Sequence = last + 1
		err = r.db.WithContext(ctx).Create(m).Error
		if err == nil {
			log.ID = m.ID
			log.Sequence = m.Sequence
			log.CreatedAt = m.CreatedAt
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
	}
	return err
}

func (r *cancellationLogRepositoryImpl) FindByRequest(ctx context.Context, specs ...specification.Specification) ([]*entity.CancellationLog, error) {
	var models []*model.CancellationLog
	query := r.db.WithContext(ctx).Scopes(scope.OrderBySequence)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	logs := make([]*entity.CancellationLog, 0, len(models))
	for _, m := range models {
		logs = append(logs, r.mapper.LogToEntity(m))
	}
	return logs, nil
}

func (r *cancellationLogRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.CancellationLog{})
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	err := query.Count(&count).Error
	return count, err
}
