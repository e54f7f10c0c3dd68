package main

import (
	"context"
	"log"
	"os"

	"cancelflow-be/internal/repository/unitofwork"
	"cancelflow-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.Open(dsn, database.DefaultPool)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	ctx := context.Background()
	uowFactory := unitofwork.NewRepositoryFactory(db)

	log.Println("Seeding provider catalog...")
	providers := SeedProviders(ctx, uowFactory)

	if os.Getenv("SEED_DEMO_USER_ID") != "" {
		log.Println("Seeding demo subscriptions...")
		SeedDemoSubscriptions(ctx, uowFactory, os.Getenv("SEED_DEMO_USER_ID"), providers)
	}

	log.Println("Seeding completed!")
}
