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

type auditLogRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AuditMapper
}

func NewAuditLogRepository(db *gorm.DB) contract.AuditLogRepository {
	return &auditLogRepositoryImpl{db: db, mapper: mapper.NewAuditMapper()}
}

func (r *auditLogRepositoryImpl) Create(ctx context.Context, log *entity.AuditLog) error {
	m := r.mapper.ToModel(log)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	log.ID = m.ID
	log.CreatedAt = m.CreatedAt
	return nil
}

func (r *auditLogRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.AuditLog, error) {
	var models []*model.AuditLog
	query := r.db.WithContext(ctx).Scopes(scope.OrderByCreatedAsc)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	logs := make([]*entity.AuditLog, 0, len(models))
	for _, m := range models {
		logs = append(logs, r.mapper.ToEntity(m))
	}
	return logs, nil
}

func (r *auditLogRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.AuditLog{})
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	err := query.Count(&count).Error
	return count, err
}
