package implementation

import (
	"context"
	"errors"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/mapper"
	"cancelflow-be/internal/model"
	"cancelflow-be/internal/repository/contract"
	"cancelflow-be/internal/repository/specification"

	"gorm.io/gorm"
)

type subscriptionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SubscriptionMapper
}

func NewSubscriptionRepository(db *gorm.DB) contract.SubscriptionRepository {
	return &subscriptionRepositoryImpl{db: db, mapper: mapper.NewSubscriptionMapper()}
}

func (r *subscriptionRepositoryImpl) Create(ctx context.Context, subscription *entity.Subscription) error {
	m := r.mapper.ToModel(subscription)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	subscription.ID = m.ID
	return nil
}

func (r *subscriptionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error) {
	var m model.Subscription
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
	return r.mapper.ToEntity(&m), nil
}

func (r *subscriptionRepositoryImpl) Update(ctx context.Context, subscription *entity.Subscription) error {
	return r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ?", subscription.ID).
		Updates(map[string]interface{}{
			"status":             string(subscription.Status),
			"is_active":          subscription.IsActive,
			"current_period_end": subscription.CurrentPeriodEnd,
			"cancelled_at":       subscription.CancelledAt,
		}).Error
}
