package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	groupcallHandler "heartlink-backend/internal/handler/http/groupcall"
	userHandler "heartlink-backend/internal/handler/http/user"
	wsHandler "heartlink-backend/internal/handler/ws"
	"heartlink-backend/internal/middleware"
	cassandraRepo "heartlink-backend/internal/repository/cassandra"
	"heartlink-backend/internal/repository/cockroach"
	redisRepo "heartlink-backend/internal/repository/redis"
	groupcallService "heartlink-backend/internal/service/groupcall"
	"heartlink-backend/internal/service/signaling"
	userService "heartlink-backend/internal/service/user"
	walletService "heartlink-backend/internal/service/wallet"
	"heartlink-backend/pkg/constants"
	pkgDatabase "heartlink-backend/pkg/database"
	"heartlink-backend/pkg/env"
	"heartlink-backend/pkg/jwt"
	"heartlink-backend/pkg/logger"
	"heartlink-backend/pkg/metrics"
)

func main() {
	// Create context for database operations
	ctx := context.Background()

	logger.InitDefault()
	defer logger.Sync()

	// 1. Setup JWT Manager
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}

	jwtManager := jwt.NewJWTManager(jwtSecret, constants.AccessTokenExpiry, constants.RefreshTokenExpiry)

	// 2. Connect to CockroachDB with retry logic
	dbConfig := &pkgDatabase.CockroachConfig{
		Host:     env.GetString("DB_HOST", "localhost"),
		Port:     env.GetInt("DB_PORT", 26257),
		User:     env.GetString("DB_USER", "root"),
		Password: env.GetStringFromFile("DB_PASSWORD", ""),
		Database: env.GetString("DB_NAME", "heartlink"),
		SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
	}

	db, err := connectCockroachWithRetry(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to CockroachDB: %v", err)
	}
	defer db.Close()
	log.Println("✅ Connected to CockroachDB")

	groupRepo := cockroach.NewGroupCallRepository(db.Pool)
	userRepo := cockroach.NewUserRepository(db.Pool)
	walletRepo := cockroach.NewWalletRepository(db.Pool)

	// 3. Connect to Redis
	redisDB, err := pkgDatabase.NewRedisDBFromEnv()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()
	log.Println("✅ Connected to Redis")

	presenceRepo := redisRepo.NewPresenceRepository(redisDB.Client)
	revocationRepo := redisRepo.NewRevocationRepository(redisDB.Client)

	// 4. Connect to Cassandra for call history. The history store is
	// best-effort; the service runs without it.
	var eventLog signaling.EventLog
	var historyStore userService.HistoryReader
	cassandraDB, err := pkgDatabase.NewCassandraDBFromEnv()
	if err != nil {
		log.Printf("Warning: Failed to connect to Cassandra: %v", err)
		log.Println("Running without call event history")
	} else {
		defer cassandraDB.Close()
		callEvents := cassandraRepo.NewCallEventRepository(cassandraDB.Session)
		eventLog = callEvents
		historyStore = callEvents
		log.Println("✅ Connected to Cassandra")
	}

	// 5. Initialize Services
	walletSvc := walletService.NewService(userRepo, walletRepo, logger.Log)
	groupSvc := groupcallService.NewService(groupRepo, walletSvc, logger.Log)
	userSvc := userService.NewService(userRepo, presenceRepo, historyStore, logger.Log)

	// 6. Initialize Metrics
	appMetrics := metrics.NewMetrics("signaling-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 7. Initialize Signaling Hub and Protocol Service. The hub delivers
	// outbound envelopes on behalf of the service, so they are bound
	// after both exist.
	signalingHub := wsHandler.NewSignalingHub(jwtManager)
	signalingSvc := signaling.NewService(signaling.Options{
		Sender:      signalingHub,
		GroupCalls:  groupSvc,
		EventLog:    eventLog,
		Presence:    presenceRepo,
		Ledger:      walletSvc,
		Publisher:   redisDB,
		Metrics:     appMetrics,
		Logger:      logger.Log,
		RingTimeout: env.GetDuration("RING_TIMEOUT", signaling.DefaultRingTimeout),
	})
	signalingHub.Bind(signalingSvc)

	// 8. Initialize Handlers
	groupHdlr := groupcallHandler.NewHandler(groupSvc)
	userHdlr := userHandler.NewHandler(userSvc, walletSvc)

	// 9. Setup Gin Router
	if !env.GetBool("DEBUG", false) {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New() // Don't use Default() to have full control

	// Configure trusted proxies for production
	trustedProxies := []string{}
	if os.Getenv("ENV") == "production" {
		trustedProxies = []string{
			"https://api.heartlink.app",
			"https://*.heartlink.app",
		}
	} else {
		trustedProxies = []string{
			"http://localhost:3000",
			"http://localhost:8080",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:8080",
		}
	}
	router.SetTrustedProxies(trustedProxies)

	// Apply global middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	// Health check
	router.GET("/health", middleware.HealthCheck("signaling-service"))

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler())

	// WebSocket endpoint; the hub authenticates the token itself before
	// upgrading, so it sits outside the HTTP auth middleware.
	router.GET("/v1/signaling/ws", signalingHub.ServeWS)

	// Group call routes (all require authentication)
	v1 := router.Group("/v1/group-calls")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationRepo))
	{
		v1.POST("", groupHdlr.Create)
		v1.GET("", groupHdlr.ListOpen)
		v1.GET("/:roomId", groupHdlr.Get)
		v1.POST("/:roomId/join", groupHdlr.Join)
		v1.POST("/:roomId/leave", groupHdlr.Leave)
		v1.POST("/:roomId/end", groupHdlr.End)
	}

	// User routes
	users := router.Group("/v1/users")
	users.Use(middleware.AuthMiddleware(jwtManager, revocationRepo))
	{
		users.GET("/me", userHdlr.Me)
		users.GET("/me/transactions", userHdlr.Transactions)
		users.GET("/me/call-history", userHdlr.History)
		users.GET("/online", userHdlr.Online)
		users.GET("/:userId", userHdlr.Get)
	}

	// 10. Start server
	port := env.GetString("PORT", "8082")
	addr := fmt.Sprintf(":%s", port)

	log.Printf("🚀 Signaling Service starting on port %s\n", port)
	log.Println("📡 WebRTC Signaling: /v1/signaling/ws")
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// connectCockroachWithRetry dials CockroachDB with exponential backoff.
func connectCockroachWithRetry(ctx context.Context, cfg *pkgDatabase.CockroachConfig) (*pkgDatabase.CockroachDB, error) {
	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err := pkgDatabase.NewCockroachDB(ctx, cfg)
	if err == nil {
		return db, nil
	}

	for attempt := 2; attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		log.Printf("⚠️  CockroachDB connection attempt %d failed: %v. Retrying in %v...", attempt-1, err, delay)
		time.Sleep(delay)

		db, err = pkgDatabase.NewCockroachDB(ctx, cfg)
		if err == nil {
			return db, nil
		}
	}

	return nil, err
}
