package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Subscription struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProviderID       *uuid.UUID `gorm:"type:uuid;index"`
	ExternalID       string     `gorm:"type:varchar(255);index"`
	PlanName         string     `gorm:"type:varchar(255)"`
	Status           string     `gorm:"type:varchar(32);not null"`
	IsActive         bool       `gorm:"not null"`
	CurrentPeriodEnd *time.Time
	CancelledAt      *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (m *Subscription) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
