package model

import (
	"fmt"

	"gorm.io/gorm"
)

// ActiveRequestIndex closes the race between two concurrent enqueues for the same subscription.
const ActiveRequestIndex = "uq_cancellation_requests_active"

// Migrate creates the engine tables and the partial unique index.
// The index statement is valid on both PostgreSQL and SQLite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Provider{},
		&Subscription{},
		&CancellationRequest{},
		&CancellationLog{},
		&AuditLog{},
		&Job{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON cancellation_requests (subscription_id) WHERE status IN ('pending', 'processing')",
		ActiveRequestIndex,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create %s: %w", ActiveRequestIndex, err)
	}
	return nil
}
