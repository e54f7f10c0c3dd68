package mapper

import (
	"encoding/json"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/model"

	"gorm.io/datatypes"
)

type SubscriptionMapper struct{}

func NewSubscriptionMapper() *SubscriptionMapper {
	return &SubscriptionMapper{}
}

func (m *SubscriptionMapper) ToEntity(s *model.Subscription) *entity.Subscription {
	if s == nil {
		return nil
	}
	return &entity.Subscription{
		ID:               s.ID,
		UserID:           s.UserID,
		ProviderID:       s.ProviderID,
		ExternalID:       s.ExternalID,
		PlanName:         s.PlanName,
		Status:           entity.SubscriptionStatus(s.Status),
		IsActive:         s.IsActive,
		CurrentPeriodEnd: s.CurrentPeriodEnd,
		CancelledAt:      s.CancelledAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func (m *SubscriptionMapper) ToModel(s *entity.Subscription) *model.Subscription {
	if s == nil {
		return nil
	}
	return &model.Subscription{
		ID:               s.ID,
		UserID:           s.UserID,
		ProviderID:       s.ProviderID,
		ExternalID:       s.ExternalID,
		PlanName:         s.PlanName,
		Status:           string(s.Status),
		IsActive:         s.IsActive,
		CurrentPeriodEnd: s.CurrentPeriodEnd,
		CancelledAt:      s.CancelledAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

type ProviderMapper struct{}

func NewProviderMapper() *ProviderMapper {
	return &ProviderMapper{}
}

func (m *ProviderMapper) ToEntity(p *model.Provider) *entity.Provider {
	if p == nil {
		return nil
	}
	e := &entity.Provider{
		ID:                 p.ID,
		Name:               p.Name,
		NormalizedName:     p.NormalizedName,
		Type:               entity.CancellationMethod(p.Type),
		SupportsRefunds:    p.SupportsRefunds,
		Requires2FA:        p.Requires2FA,
		HasRetentionOffers: p.HasRetentionOffers,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if len(p.Settings) > 0 {
		_ = json.Unmarshal(p.Settings, &e.Settings)
	}
	return e
}

func (m *ProviderMapper) ToModel(p *entity.Provider) *model.Provider {
	if p == nil {
		return nil
	}
	normalized := p.NormalizedName
	if normalized == "" {
		normalized = entity.NormalizeProviderName(p.Name)
	}
	return &model.Provider{
		ID:                 p.ID,
		Name:               p.Name,
		NormalizedName:     normalized,
		Type:               string(p.Type),
		Settings:           toJSON(p.Settings),
		SupportsRefunds:    p.SupportsRefunds,
		Requires2FA:        p.Requires2FA,
		HasRetentionOffers: p.HasRetentionOffers,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

type AuditMapper struct{}

func NewAuditMapper() *AuditMapper {
	return &AuditMapper{}
}

func (m *AuditMapper) ToEntity(a *model.AuditLog) *entity.AuditLog {
	if a == nil {
		return nil
	}
	return &entity.AuditLog{
		ID:         a.ID,
		Kind:       entity.AuditKind(a.Kind),
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		Action:     a.Action,
		Actor:      a.Actor,
		Metadata:   a.Metadata,
		CreatedAt:  a.CreatedAt,
	}
}

func (m *AuditMapper) ToModel(a *entity.AuditLog) *model.AuditLog {
	if a == nil {
		return nil
	}
	return &model.AuditLog{
		ID:         a.ID,
		Kind:       string(a.Kind),
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		Action:     a.Action,
		Actor:      a.Actor,
		Metadata:   datatypes.JSONMap(a.Metadata),
		CreatedAt:  a.CreatedAt,
	}
}
