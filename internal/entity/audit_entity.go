package entity

import (
	"time"

	"github.com/google/uuid"
)

type AuditKind string

const (
	AuditKindTransition AuditKind = "transition"
	AuditKindJob        AuditKind = "job"
	AuditKindWebhook    AuditKind = "webhook"
	AuditKindAnalytics  AuditKind = "analytics"
)

type AuditLog struct {
	ID         uuid.UUID
	Kind       AuditKind
	EntityType string
	EntityID   string
	Action     string
	Actor      string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
}
