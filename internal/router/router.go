package router

import (
	"log"

	"github.com/compareyuv/backend/internal/handlers"
	"github.com/compareyuv/backend/internal/middleware"
	"github.com/compareyuv/backend/internal/models"
	"github.com/compareyuv/backend/internal/ratelimit"
	"github.com/compareyuv/backend/internal/repositories"
	"github.com/compareyuv/backend/internal/storage"
	"github.com/compareyuv/backend/pkg/config"
	"github.com/compareyuv/backend/pkg/firebase"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Logger())
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	log.Println("Global middleware configured.")
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, pgdb *gorm.DB, firebaseApp *firebase.App, limiter *ratelimit.Store, cfg *config.Config) {
	// AutoMigrate PostgreSQL models
	if err := pgdb.AutoMigrate(&models.Post{}); err != nil {
		log.Fatalf("Failed to auto migrate models: %v", err)
	}
	log.Println("PostgreSQL auto-migrations completed.")

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Initialize gateways ---
	postRepo := repositories.NewPostgresPostRepository(pgdb)
	objectStore := storage.NewGCSObjectStore(firebaseApp.Bucket, cfg.StorageBucket)

	// --- Public share view (no authentication) ---
	shareHandler := handlers.NewShareHandler(postRepo)
	shareHandler.RegisterShareRoutes(e, limiter, cfg.Env)
	log.Println("Share routes configured.")

	// --- Protected routes (require Firebase authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.FirebaseAuthMiddleware(firebaseApp.AuthClient))
	log.Println("Firebase authentication middleware applied to /api/v1 group.")

	postHandler := handlers.NewPostHandler(postRepo, objectStore)
	postHandler.RegisterPostRoutes(api, limiter, cfg.Env)
	log.Println("Post routes configured.")

	log.Println("All routes configured.")
}
