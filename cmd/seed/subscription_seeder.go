package main

import (
	"context"
	"log"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// SeedDemoSubscriptions gives a user one active subscription per provider.
func SeedDemoSubscriptions(ctx context.Context, uowFactory unitofwork.RepositoryFactory, rawUserID string, providers map[string]*entity.Provider) {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		log.Printf("Error: SEED_DEMO_USER_ID is not a UUID: %v", err)
		return
	}

	repo := uowFactory.NewUnitOfWork(ctx).SubscriptionRepository()
	for name, p := range providers {
		providerID := p.ID
		sub := &entity.Subscription{
			UserID:     userID,
			ProviderID: &providerID,
			ExternalID: "demo-" + name + "-" + userID.String()[:8],
			PlanName:   "Standard",
			Status:     entity.SubscriptionStatusActive,
			IsActive:   true,
		}
		if err := repo.Create(ctx, sub); err != nil {
			log.Printf("Error creating %s subscription: %v", name, err)
			continue
		}
		log.Printf("Created subscription %s for %s", sub.ID, name)
	}
}
