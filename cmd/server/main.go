package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"liquidation-api/internal/auth"
	"liquidation-api/internal/compliance"
	"liquidation-api/internal/config"
	"liquidation-api/internal/database"
	"liquidation-api/internal/eligibility"
	"liquidation-api/internal/liquidation"
	"liquidation-api/internal/pricing"
	"liquidation-api/internal/provider"
	"liquidation-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the liquidation API server with graceful
// shutdown support. It wires the eligibility, compliance, pricing and
// provider collaborators into the orchestrator and exposes the API.
func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth.JWTSecret, map[string]string{
		cfg.Auth.APIKey: cfg.Auth.APISecret,
	})
	authHandlers := auth.NewGinHandlers(authService)

	eligibilityService := eligibility.NewService(db)
	eligibilityHandlers := eligibility.NewGinHandlers(eligibilityService)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	pricingService := pricing.NewService(db, pricing.NewSimulatedSource(rng))
	pricingHandlers := pricing.NewGinHandlers(pricingService)

	providerService := provider.NewService(db)
	providerHandlers := provider.NewGinHandlers(providerService)

	complianceService := compliance.NewService(db, compliance.DefaultCheckers(rng))
	complianceHandlers := compliance.NewGinHandlers(complianceService)

	liquidationService := liquidation.NewService(db, eligibilityService, complianceService, pricingService, providerService)
	liquidationHandlers := liquidation.NewGinHandlers(liquidationService)

	// Create and start the request expiry sweep
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	if cfg.Sweep.Enabled {
		sweep := liquidation.NewProcessor(liquidationService, cfg.Sweep.Interval)
		go sweep.Start(sweepCtx)
	}

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authService, authHandlers, liquidationHandlers, pricingHandlers, providerHandlers, complianceHandlers, eligibilityHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Liquidation routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	liquidationHandlers *liquidation.GinHandlers,
	pricingHandlers *pricing.GinHandlers,
	providerHandlers *provider.GinHandlers,
	complianceHandlers *compliance.GinHandlers,
	eligibilityHandlers *eligibility.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Liquidation routes
		liquidations := v1.Group("/liquidations")
		liquidations.Use(middleware.JWTAuth(authService, auth.PermissionLiquidate))
		{
			liquidations.POST("", liquidationHandlers.CreateRequestHandler())
			liquidations.GET("", liquidationHandlers.ListRequestsHandler())
			liquidations.GET("/:request_id", liquidationHandlers.GetRequestHandler())
			liquidations.POST("/:request_id/cancel", liquidationHandlers.CancelRequestHandler())
		}

		// Quote routes
		quotes := v1.Group("")
		quotes.Use(middleware.JWTAuth(authService, auth.PermissionLiquidate))
		{
			quotes.GET("/estimate", liquidationHandlers.EstimateHandler())
			quotes.GET("/prices/:asset/:output", pricingHandlers.GetPriceHandler())
			quotes.GET("/prices/:asset/:output/best", pricingHandlers.GetBestPriceHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(authService))
		{
			internal.POST("/liquidations/:request_id/process", liquidationHandlers.ProcessRequestHandler())
			internal.POST("/liquidations/:request_id/retry", liquidationHandlers.RetryRequestHandler())
			internal.PUT("/liquidations/:request_id/status", liquidationHandlers.UpdateStatusHandler())

			internal.GET("/liquidations/:request_id/checks", complianceHandlers.GetChecksHandler())
			internal.POST("/checks/:check_id/override", complianceHandlers.OverrideCheckHandler())

			internal.POST("/providers", providerHandlers.RegisterProviderHandler())
			internal.GET("/providers", providerHandlers.ListProvidersHandler())
			internal.PUT("/providers/:provider_id/status", providerHandlers.UpdateProviderStatusHandler())
			internal.PUT("/providers/:provider_id/availability", providerHandlers.UpdateAvailabilityHandler())

			internal.PUT("/eligibility", eligibilityHandlers.UpsertRuleHandler())
			internal.GET("/eligibility", eligibilityHandlers.ListRulesHandler())
			internal.GET("/eligibility/:asset", eligibilityHandlers.GetRuleHandler())
		}
	}
}
