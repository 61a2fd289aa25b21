package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/leokovaski/linkfono-workspace-manager/internal/clients"
	"github.com/leokovaski/linkfono-workspace-manager/internal/config"
	"github.com/leokovaski/linkfono-workspace-manager/internal/handlers"
	"github.com/leokovaski/linkfono-workspace-manager/internal/metrics"
	"github.com/leokovaski/linkfono-workspace-manager/internal/middleware"
	"github.com/leokovaski/linkfono-workspace-manager/internal/models"
	natsclient "github.com/leokovaski/linkfono-workspace-manager/internal/nats"
	"github.com/leokovaski/linkfono-workspace-manager/internal/plans"
	redisclient "github.com/leokovaski/linkfono-workspace-manager/internal/redis"
	"github.com/leokovaski/linkfono-workspace-manager/internal/repository"
	"github.com/leokovaski/linkfono-workspace-manager/internal/services"
)

func main() {
	// Load configuration
	cfg := config.New()

	logger := newLogger(cfg)

	// Initialize database connection
	db, err := initDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Auto-migrate models
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize Redis connection; webhook dedup degrades without it
	var redisClient *redisclient.Client
	redisClient, err = redisclient.NewClient(cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		log.Println("Webhook deduplication will rely on database idempotency only")
		redisClient = nil
	} else {
		log.Println("Connected to Redis successfully")
	}

	// Initialize NATS connection for event publishing
	var nc *natsclient.Client
	nc, err = natsclient.NewClient(&natsclient.Config{URL: cfg.NATS.URL})
	if err != nil {
		log.Printf("Warning: Failed to connect to NATS: %v", err)
		log.Println("Event publishing will be disabled")
		nc = nil
	} else {
		log.Println("Connected to NATS successfully")
		defer nc.Close()
	}

	// Initialize metrics
	metricsCollector := metrics.New(prometheus.DefaultRegisterer)

	// Initialize repositories
	workspaceRepo := repository.NewWorkspaceRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	// Initialize Stripe gateway
	stripeClient := clients.NewStripeClient(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	// Plan catalog
	catalog := plans.NewCatalog()

	// Initialize services
	trialSvc := services.NewTrialService(profileRepo)
	provisioningSvc := services.NewProvisioningService(workspaceRepo, profileRepo, stripeClient, catalog, trialSvc, nc)
	checkoutSvc := services.NewCheckoutService(profileRepo, stripeClient, catalog, trialSvc, cfg.App.AppURL)
	reconcilerSvc := services.NewReconcilerService(workspaceRepo, profileRepo, catalog, trialSvc, redisClient, nc)
	workspaceSvc := services.NewWorkspaceService(workspaceRepo, stripeClient, catalog, nc)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	workspaceHandler := handlers.NewWorkspaceHandler(provisioningSvc, workspaceSvc)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutSvc)
	trialHandler := handlers.NewTrialHandler(trialSvc)
	planHandler := handlers.NewPlanHandler(catalog)
	webhookHandler := handlers.NewWebhookHandler(stripeClient, reconcilerSvc, metricsCollector)

	// Setup router
	router := setupRouter(
		cfg,
		logger,
		healthHandler,
		workspaceHandler,
		checkoutHandler,
		trialHandler,
		planHandler,
		webhookHandler,
		metricsCollector,
	)

	// Setup server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting workspace-manager on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis connection: %v", err)
		}
	}

	log.Println("Server exited")
}

func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	healthHandler *handlers.HealthHandler,
	workspaceHandler *handlers.WorkspaceHandler,
	checkoutHandler *handlers.CheckoutHandler,
	trialHandler *handlers.TrialHandler,
	planHandler *handlers.PlanHandler,
	webhookHandler *handlers.WebhookHandler,
	metricsCollector *metrics.Metrics,
) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{
		"http://localhost:3000",
		"http://localhost:5173",
		cfg.App.AppURL,
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-User-ID", "X-User-Email"}
	corsConfig.AllowCredentials = true

	// Global middleware
	router.Use(cors.New(corsConfig))
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(logger))
	router.Use(metricsCollector.Middleware())

	// Metrics endpoint (Prometheus scraping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health endpoints
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Billing webhook: authenticated by signature, not by session
	router.POST("/webhooks/stripe", webhookHandler.Handle)

	v1 := router.Group("/api/v1")
	{
		// Public plan catalog
		v1.GET("/plans", planHandler.List)

		authed := v1.Group("")
		authed.Use(middleware.Auth(cfg.App.JWTSecret))
		{
			authed.POST("/workspaces", workspaceHandler.Create)
			authed.GET("/workspaces", workspaceHandler.List)
			authed.GET("/workspaces/:id", workspaceHandler.Get)
			authed.PATCH("/workspaces/:id", workspaceHandler.Update)
			authed.DELETE("/workspaces/:id", workspaceHandler.Delete)
			authed.PATCH("/workspaces/:id/settings", workspaceHandler.UpdateSettings)
			authed.POST("/workspaces/:id/change-plan", workspaceHandler.ChangePlan)
			authed.POST("/workspaces/:id/cancel-subscription", workspaceHandler.CancelSubscription)

			authed.POST("/checkout/create-session", checkoutHandler.CreateSession)

			authed.GET("/users/me/trial-status", trialHandler.Status)
		}
	}

	return router
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Connected to database successfully")
	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	// uuid_generate_v4 defaults need the extension present
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Printf("Warning: could not ensure uuid-ossp extension: %v", err)
	}

	return db.AutoMigrate(
		&models.Profile{},
		&models.Workspace{},
		&models.WorkspaceSettings{},
		&models.WorkspaceMember{},
	)
}
