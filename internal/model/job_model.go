package model

import (
	"time"

	"gorm.io/datatypes"
)

// Job backs the persisted work queue.
type Job struct {
	ID          string         `gorm:"type:varchar(64);primaryKey"`
	Type        string         `gorm:"type:varchar(64);not null;index"`
	Data        datatypes.JSON `gorm:"type:jsonb"`
	Status      string         `gorm:"type:varchar(16);not null;index:idx_jobs_due"`
	Attempts    int            `gorm:"not null;default:0"`
	MaxAttempts int            `gorm:"not null;default:3"`
	AvailableAt time.Time      `gorm:"not null;index:idx_jobs_due"`
	LastError   *string        `gorm:"type:text"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	CompletedAt *time.Time
}

func (Job) TableName() string {
	return "jobs"
}
