package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"detection-service/config"
	"detection-service/database"
	"detection-service/handlers"
	"detection-service/listener"
	"detection-service/metrics"
	"detection-service/middleware"
	"detection-service/storage"
	"detection-service/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EndPointSubmitDetection = "/submit-detection"
	EndPointHealth          = "/health"
	EndPointMetrics         = "/metrics"
	EndPointLiveFeed        = "/ws/live"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn(".env file not found, using system environment variables")
	}

	cfg := config.Load()
	if cfg.DeviceAPIKey == "" {
		log.Fatal("DEVICE_API_KEY environment variable is required")
	}

	log.Info("Starting the detection service...")

	// Database connection
	db, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Initializing database schema...")
	if err := database.InitializeSchema(db); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	// Object storage
	store, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
		cfg.MinioUseSSL, cfg.StorageBucket, cfg.StoragePublicURL)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureBucket(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to ensure storage bucket: %v", err)
	}
	cancel()

	// Ingestion dependencies
	detectionService := database.NewDetectionService(db)
	limiter := middleware.NewFixedWindowLimiter(cfg.RateLimitPerMinute, time.Minute)

	// Live feed
	hub := websocket.NewHub()
	go hub.Run()

	feedListener := listener.New(detectionService, hub, cfg.BroadcastInterval)
	if err := feedListener.Start(); err != nil {
		log.Fatalf("Failed to start detection listener: %v", err)
	}
	defer feedListener.Stop()

	router := setupRouter(cfg, detectionService, store, limiter, hub)

	if cfg.RateLimitPerMinute > 0 {
		log.Infof("Rate limit: %d requests per minute per device", cfg.RateLimitPerMinute)
	} else {
		log.Warn("Rate limiting is disabled")
	}
	log.Infof("Detection service starting on %s:%s", cfg.Host, cfg.Port)
	if err := router.Run(cfg.Host + ":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

func setupRouter(cfg *config.Config, detectionService *database.DetectionService,
	store *storage.MinioStore, limiter middleware.RateLimiter, hub *websocket.Hub) *gin.Engine {

	router := gin.Default()

	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(metrics.Middleware())

	h := handlers.NewHandlers(detectionService, store, limiter, cfg.MaxImageBase64Bytes)
	wsHandler := handlers.NewWebSocketHandler(hub)

	// Device ingestion
	router.POST(EndPointSubmitDetection, middleware.APIKeyMiddleware(cfg.DeviceAPIKey), h.SubmitDetection)

	// Dashboard API
	dashboard := router.Group("/api/v3", middleware.APIKeyMiddleware(cfg.DashboardAPIKey))
	{
		dashboard.GET("/detections", h.ListDetections)
		dashboard.GET("/detections/:id", h.GetDetection)
		dashboard.DELETE("/detections/:id", h.DeleteDetection)
	}

	// Live feed and operations endpoints
	router.GET(EndPointLiveFeed, wsHandler.LiveFeed)
	router.GET(EndPointHealth, wsHandler.HealthCheck)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))

	return router
}
