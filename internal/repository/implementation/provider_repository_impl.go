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

type providerRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ProviderMapper
}

func NewProviderRepository(db *gorm.DB) contract.ProviderRepository {
	return &providerRepositoryImpl{db: db, mapper: mapper.NewProviderMapper()}
}

func (r *providerRepositoryImpl) Create(ctx context.Context, provider *entity.Provider) error {
	m := r.mapper.ToModel(provider)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	provider.ID = m.ID
	provider.NormalizedName = m.NormalizedName
	return nil
}

func (r *providerRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Provider, error) {
	var m model.Provider
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

func (r *providerRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Provider, error) {
	var models []*model.Provider
	query := r.db.WithContext(ctx)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	providers := make([]*entity.Provider, 0, len(models))
	for _, m := range models {
		providers = append(providers, r.mapper.ToEntity(m))
	}
	return providers, nil
}

func (r *providerRepositoryImpl) Update(ctx context.Context, provider *entity.Provider) error {
	m := r.mapper.ToModel(provider)
	return r.db.WithContext(ctx).Model(&model.Provider{}).
		Where("id = ?", provider.ID).
		Updates(map[string]interface{}{
			"name":                 m.Name,
			"type":                 m.Type,
			"settings":             m.Settings,
			"supports_refunds":     m.SupportsRefunds,
			"requires_2fa":         m.Requires2FA,
			"has_retention_offers": m.HasRetentionOffers,
		}).Error
}
