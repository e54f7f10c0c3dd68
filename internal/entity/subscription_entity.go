package entity

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	ProviderID       *uuid.UUID
	ExternalID       string // the provider's own subscription identifier
	PlanName         string
	Status           SubscriptionStatus
	IsActive         bool
	CurrentPeriodEnd *time.Time
	CancelledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (s *Subscription) IsCancelled() bool {
	return s.Status == SubscriptionStatusCancelled || !s.IsActive
}
