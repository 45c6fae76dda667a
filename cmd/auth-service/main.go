package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	authHandler "heartlink-backend/internal/handler/http/auth"
	"heartlink-backend/internal/middleware"
	"heartlink-backend/internal/repository/cockroach"
	redisRepo "heartlink-backend/internal/repository/redis"
	authService "heartlink-backend/internal/service/auth"
	"heartlink-backend/pkg/config"
	"heartlink-backend/pkg/constants"
	"heartlink-backend/pkg/database"
	"heartlink-backend/pkg/jwt"
	"heartlink-backend/pkg/logger"
	"heartlink-backend/pkg/metrics"
)

func main() {
	// Initialize context
	ctx := context.Background()

	logger.InitDefault()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate JWT secret in production
	if cfg.Server.Environment == "production" {
		if cfg.JWT.Secret == "" {
			log.Fatal("JWT_SECRET environment variable is required in production")
		}
		if len(cfg.JWT.Secret) < 32 {
			log.Fatal("JWT_SECRET must be at least 32 characters")
		}
	}

	// 1. Setup JWT Manager
	jwtManager := jwt.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)

	// 2. Connect to CockroachDB
	cockroachDB, err := database.NewCockroachDB(ctx, &database.CockroachConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to CockroachDB: %v", err)
	}
	defer cockroachDB.Close()

	log.Println("✅ Connected to CockroachDB")

	// 3. Connect to Redis
	redisDB, err := database.NewRedisDB(&database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()

	log.Println("✅ Connected to Redis")

	// 4. Initialize Repositories
	userRepo := cockroach.NewUserRepository(cockroachDB.Pool)
	otpRepo := redisRepo.NewOTPRepository(redisDB.Client)
	revocationRepo := redisRepo.NewRevocationRepository(redisDB.Client)

	// 5. Initialize Services. Codes are delivered through the logged
	// sender; production swaps in a real SMS gateway.
	authSvc := authService.NewService(
		otpRepo,
		userRepo,
		&authService.LoggedSMSSender{Log: logger.Log},
		jwtManager,
		revocationRepo,
		logger.Log,
	)

	// 6. Initialize Metrics
	appMetrics := metrics.NewMetrics("auth-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 7. Initialize Handlers
	authHdlr := authHandler.NewHandler(authSvc, appMetrics)

	// 8. Setup Gin Router
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	// Health check
	router.GET("/health", middleware.HealthCheck("auth-service"))

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler())

	// Auth routes (public, no authentication required)
	auth := router.Group("/v1/auth")
	{
		auth.POST("/request-otp", authHdlr.RequestOTP)
		auth.POST("/verify-otp", authHdlr.VerifyOTP)
		auth.POST("/refresh", authHdlr.Refresh)
		auth.POST("/logout", authHdlr.Logout)
	}

	// 9. Start server in goroutine
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Auth Service starting on port %d\n", cfg.Server.Port)
		log.Println("📍 Routes:")
		log.Println("   - Auth: /v1/auth/*")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
