// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory SQLite database with the engine schema.
// A single connection keeps the memory database alive and serializes access.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := model.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedProvider inserts a provider row and returns its entity form.
func SeedProvider(t testing.TB, db *gorm.DB, name string, method entity.CancellationMethod, settings entity.ProviderSettings) *entity.Provider {
	t.Helper()

	p := &model.Provider{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: entity.NormalizeProviderName(name),
		Type:           string(method),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	if err := db.Model(p).Update("settings", mustJSON(t, settings)).Error; err != nil {
		t.Fatalf("seed provider settings: %v", err)
	}

	return &entity.Provider{
		ID:             p.ID,
		Name:           p.Name,
		NormalizedName: p.NormalizedName,
		Type:           method,
		Settings:       settings,
	}
}

// SeedSubscription inserts an active subscription for a fresh user.
func SeedSubscription(t testing.TB, db *gorm.DB, providerID *uuid.UUID, externalID string) *model.Subscription {
	t.Helper()

	periodEnd := time.Now().Add(20 * 24 * time.Hour).UTC().Truncate(time.Second)
	s := &model.Subscription{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		ProviderID:       providerID,
		ExternalID:       externalID,
		PlanName:         "Premium",
		Status:           string(entity.SubscriptionStatusActive),
		IsActive:         true,
		CurrentPeriodEnd: &periodEnd,
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return s
}
