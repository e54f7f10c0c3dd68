package implementation

import (
	"context"
	"errors"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/mapper"
	"cancelflow-be/internal/model"
	"cancelflow-be/internal/repository/contract"
	"cancelflow-be/internal/repository/specification"

	"gorm.io/gorm"
)

type cancellationRequestRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CancellationMapper
}

// NewCancellationRequestRepository creates a new cancellation request repository
func NewCancellationRequestRepository(db *gorm.DB) contract.CancellationRequestRepository {
	return &cancellationRequestRepositoryImpl{db: db, mapper: mapper.NewCancellationMapper()}
}

func (r *cancellationRequestRepositoryImpl) Create(ctx context.Context, request *entity.CancellationRequest) error {
	m := r.mapper.RequestToModel(request)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return contract.ErrActiveRequestExists
		}
		return err
	}
	request.ID = m.ID
	request.CreatedAt = m.CreatedAt
	request.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *cancellationRequestRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CancellationRequest, error) {
	var m model.CancellationRequest
	query := r.db.WithContext(ctx)

	for _, spec := range specs {
		query = spec.Apply(query)
	}

	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return r.mapper.RequestToEntity(&m), nil
}

func (r *cancellationRequestRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.CancellationRequest, error) {
	var models []*model.CancellationRequest
	query := r.db.WithContext(ctx)

	for _, spec := range specs {
		query = spec.Apply(query)
	}

	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	requests := make([]*entity.CancellationRequest, 0, len(models))
	for _, m := range models {
		requests = append(requests, r.mapper.RequestToEntity(m))
	}
	return requests, nil
}

func (r *cancellationRequestRepositoryImpl) UpdateIfStatus(ctx context.Context, request *entity.CancellationRequest, expected entity.CancellationStatus) (bool, error) {
	m := r.mapper.RequestToModel(request)
	now := time.Now()

	res := r.db.WithContext(ctx).Model(&model.CancellationRequest{}).
		Where("id = ? AND status = ?", request.ID, string(expected)).
		Updates(map[string]interface{}{
			"method":              m.Method,
			"status":              m.Status,
			"attempts":            m.Attempts,
			"max_attempts":        m.MaxAttempts,
			"confirmation_code":   m.ConfirmationCode,
			"effective_date":      m.EffectiveDate,
			"refund_amount":       m.RefundAmount,
			"error_code":          m.ErrorCode,
			"error_message":       m.ErrorMessage,
			"error_details":       m.ErrorDetails,
			"manual_instructions": m.ManualInstructions,
			"webhook_id":          m.WebhookID,
			"webhook_expires_at":  m.WebhookExpiresAt,
			"awaiting":            m.Awaiting,
			"completed_at":        m.CompletedAt,
			"updated_at":          now,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, contract.ErrActiveRequestExists
		}
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	request.UpdatedAt = now
	return true, nil
}

func (r *cancellationRequestRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.CancellationRequest{})
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	err := query.Count(&count).Error
	return count, err
}

func (r *cancellationRequestRepositoryImpl) CountByStatus(ctx context.Context, specs ...specification.Specification) (map[entity.CancellationStatus]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	query := r.db.WithContext(ctx).Model(&model.CancellationRequest{})
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[entity.CancellationStatus]int64, len(rows))
	for _, row := range rows {
		counts[entity.CancellationStatus(row.Status)] = row.Total
	}
	return counts, nil
}
