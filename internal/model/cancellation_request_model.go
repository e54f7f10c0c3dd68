package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CancellationRequest GORM model. The one-active-request rule is enforced by the
// partial unique index created in Migrate.
type CancellationRequest struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubscriptionID     uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID             uuid.UUID `gorm:"type:uuid;not null;index"`
	Method             string    `gorm:"type:varchar(32);not null"`
	Status             string    `gorm:"type:varchar(32);not null;index"`
	Reason             string    `gorm:"type:text"`
	ContactEmail       string    `gorm:"type:varchar(255)"`
	Attempts           int       `gorm:"not null;default:0"`
	MaxAttempts        int       `gorm:"not null;default:3"`
	ConfirmationCode   *string   `gorm:"type:varchar(128)"`
	EffectiveDate      *time.Time
	RefundAmount       *float64       `gorm:"type:decimal(10,2)"`
	ErrorCode          *string        `gorm:"type:varchar(64)"`
	ErrorMessage       *string        `gorm:"type:text"`
	ErrorDetails       datatypes.JSON `gorm:"type:jsonb"`
	ManualInstructions datatypes.JSON `gorm:"type:jsonb"`
	WebhookID          *string        `gorm:"type:varchar(64);index"`
	WebhookExpiresAt   *time.Time
	Awaiting           string    `gorm:"type:varchar(16)"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
	CompletedAt        *time.Time
}

func (CancellationRequest) TableName() string {
	return "cancellation_requests"
}

func (m *CancellationRequest) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type CancellationLog struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	RequestID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_cancellation_logs_request_seq"`
	Sequence  int64             `gorm:"not null;uniqueIndex:idx_cancellation_logs_request_seq"`
	Action    string            `gorm:"type:varchar(64);not null"`
	Status    string            `gorm:"type:varchar(16);not null"`
	Message   string            `gorm:"type:text"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"autoCreateTime;index"`
}

func (CancellationLog) TableName() string {
	return "cancellation_logs"
}

func (m *CancellationLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
