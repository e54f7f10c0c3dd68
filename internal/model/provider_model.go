package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Provider struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name               string         `gorm:"type:varchar(255);not null"`
	NormalizedName     string         `gorm:"type:varchar(255);uniqueIndex;not null"`
	Type               string         `gorm:"type:varchar(32);not null"`
	Settings           datatypes.JSON `gorm:"type:jsonb"`
	SupportsRefunds    bool           `gorm:"default:false"`
	Requires2FA        bool           `gorm:"column:requires_2fa;default:false"`
	HasRetentionOffers bool           `gorm:"default:false"`
	CreatedAt          time.Time      `gorm:"autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime"`
}

func (Provider) TableName() string {
	return "providers"
}

func (m *Provider) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
