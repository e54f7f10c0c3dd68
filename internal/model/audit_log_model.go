package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is the append-only audit sink. Rows are never updated.
type AuditLog struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Kind       string            `gorm:"type:varchar(20);not null;index"`
	EntityType string            `gorm:"type:varchar(50);not null;index:idx_audit_logs_entity"`
	EntityID   string            `gorm:"type:varchar(64);not null;index:idx_audit_logs_entity"`
	Action     string            `gorm:"type:varchar(64);not null"`
	Actor      string            `gorm:"type:varchar(64)"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"autoCreateTime;index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (m *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
