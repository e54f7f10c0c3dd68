package main

import (
	"context"
	"log"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/repository/specification"
	"cancelflow-be/internal/repository/unitofwork"
)

func catalog() []*entity.Provider {
	return []*entity.Provider{
		{
			Name: "Netflix",
			Type: entity.MethodAPI,
			Settings: entity.ProviderSettings{
				APIEndpoint:    "https://api.netflix.example/v1/subscriptions/cancel",
				CredentialsRef: "env:NETFLIX_API_KEY",
				CancelURL:      "https://www.netflix.com/cancelplan",
				Contact:        entity.ContactInfo{ChatURL: "https://help.netflix.com/contactus"},
			},
			HasRetentionOffers: true,
		},
		{
			Name: "Spotify",
			Type: entity.MethodWebhook,
			Settings: entity.ProviderSettings{
				WebhookInitURL: "https://api.spotify.example/v1/cancellations",
				CredentialsRef: "env:SPOTIFY_API_KEY",
				CancelURL:      "https://www.spotify.com/account/subscription/",
			},
		},
		{
			Name: "Hulu",
			Type: entity.MethodWebAutomation,
			Settings: entity.ProviderSettings{
				StartURL:  "https://secure.hulu.com/account",
				CancelURL: "https://secure.hulu.com/account/cancel",
				Automation: []entity.AutomationStep{
					{Name: "open cancel", Action: "click", Selector: "a[href*='cancel']"},
					{Name: "decline offer", Action: "waitForSelector", Selector: "button.continue-to-cancel", TimeoutMs: 10000},
					{Action: "click", Selector: "button.continue-to-cancel"},
					{Name: "confirm", Action: "click", Selector: "button.cancel-subscription"},
					{Action: "screenshot", Value: "hulu-confirmation"},
				},
				CaptchaMarkers: []string{"recaptcha", "verify you are human"},
			},
		},
		{
			Name: "Disney+",
			Type: entity.MethodAPI,
			Settings: entity.ProviderSettings{
				APIEndpoint:    "https://api.disneyplus.example/v1/cancel",
				CredentialsRef: "env:DISNEY_PLUS_API_KEY",
				CancelURL:      "https://www.disneyplus.com/account/subscription",
			},
			SupportsRefunds: true,
		},
		{
			Name: "Generic Gym",
			Type: entity.MethodManual,
			Settings: entity.ProviderSettings{
				CancelURL: "https://gym.example/membership",
				Contact:   entity.ContactInfo{Phone: "+1-800-555-0100", Hours: "Mon-Fri 9:00-17:00"},
			},
		},
	}
}

// SeedProviders creates missing catalog entries and returns every provider by normalized name.
func SeedProviders(ctx context.Context, uowFactory unitofwork.RepositoryFactory) map[string]*entity.Provider {
	repo := uowFactory.NewUnitOfWork(ctx).ProviderRepository()
	seeded := make(map[string]*entity.Provider)

	for _, p := range catalog() {
		p.NormalizedName = entity.NormalizeProviderName(p.Name)

		existing, err := repo.FindOne(ctx, specification.ByNormalizedName{Name: p.Name})
		if err != nil {
			log.Printf("Error looking up provider '%s': %v", p.Name, err)
			continue
		}
		if existing != nil {
			log.Printf("Provider '%s' already exists, skipping...", p.NormalizedName)
			seeded[existing.NormalizedName] = existing
			continue
		}

		if err := repo.Create(ctx, p); err != nil {
			log.Printf("Error creating provider '%s': %v", p.Name, err)
			continue
		}
		log.Printf("Created provider: %s (%s)", p.Name, p.Type)
		seeded[p.NormalizedName] = p
	}
	return seeded
}
