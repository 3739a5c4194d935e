package main

import (
	"context"
	"log"

	"github.com/compareyuv/backend/internal/ratelimit"
	"github.com/compareyuv/backend/internal/router"
	"github.com/compareyuv/backend/pkg/config"
	"github.com/compareyuv/backend/pkg/firebase"
	"github.com/compareyuv/backend/validators"
	"github.com/labstack/echo/v4"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database connection
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()

	// Initialize Firebase (auth + storage bucket)
	ctx := context.Background()
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.StorageBucket)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	// Initialize the request throttling store
	limiter := ratelimit.NewStore()
	defer limiter.Close()

	// Create Echo instance
	e := echo.New()

	// Setup global middleware
	router.SetupMiddleware(e)

	// Validator
	e.Validator = validators.NewValidator()

	// Setup routes and dependencies
	router.SetupRoutes(e, db.Postgres, firebaseApp, limiter, cfg)

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
