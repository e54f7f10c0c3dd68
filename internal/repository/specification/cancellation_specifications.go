package specification

import (
	"cancelflow-be/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BySubscriptionID struct {
	SubscriptionID uuid.UUID
}

func (s BySubscriptionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("subscription_id = ?", s.SubscriptionID)
}

// UserOwnedBy filters rows belonging to a user
type UserOwnedBy struct {
	UserID uuid.UUID
}

func (s UserOwnedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}

type ByStatus struct {
	Statuses []entity.CancellationStatus
}

func (s ByStatus) Apply(db *gorm.DB) *gorm.DB {
	values := make([]string, len(s.Statuses))
	for i, st := range s.Statuses {
		values[i] = string(st)
	}
	return db.Where("status IN ?", values)
}

// ActiveRequest matches pending or processing requests.
func ActiveRequest() Specification {
	return ByStatus{Statuses: entity.ActiveCancellationStatuses}
}

type ExcludeID struct {
	ID uuid.UUID
}

func (s ExcludeID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id <> ?", s.ID)
}

type ByWebhookID struct {
	WebhookID string
}

func (s ByWebhookID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("webhook_id = ?", s.WebhookID)
}

type AwaitingWebhook struct{}

func (s AwaitingWebhook) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ? AND awaiting = ?", entity.CancellationStatusProcessing, entity.AwaitingWebhook)
}

type ByRequestID struct {
	RequestID uuid.UUID
}

func (s ByRequestID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("request_id = ?", s.RequestID)
}

type ByExternalID struct {
	ExternalID string
}

func (s ByExternalID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("external_id = ?", s.ExternalID)
}

type ByNormalizedName struct {
	Name string
}

func (s ByNormalizedName) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("normalized_name = ?", entity.NormalizeProviderName(s.Name))
}

type ByEntity struct {
	EntityType string
	EntityID   string
}

func (s ByEntity) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("entity_type = ? AND entity_id = ?", s.EntityType, s.EntityID)
}
