package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	Port string
	Host string

	// Database
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// Device authentication (shared per-deployment secret)
	DeviceAPIKey string

	// Dashboard API authentication; falls back to DeviceAPIKey when unset
	DashboardAPIKey string

	// Rate limiting. 0 disables limiting entirely.
	RateLimitPerMinute int

	// Maximum accepted base64 length per image, checked before decoding.
	MaxImageBase64Bytes int

	// Object storage
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	StorageBucket  string
	// Base URL prepended to object paths to form public image URLs.
	StoragePublicURL string

	// Live feed
	BroadcastInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Host: getEnv("HOST", "0.0.0.0"),

		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBName:     getEnv("DB_NAME", "plantguard"),

		DeviceAPIKey:    getEnv("DEVICE_API_KEY", ""),
		DashboardAPIKey: getEnv("DASHBOARD_API_KEY", ""),

		RateLimitPerMinute:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		MaxImageBase64Bytes: getEnvInt("MAX_IMAGE_BASE64_BYTES", 10*1024*1024),

		MinioEndpoint:    getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:   getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:   getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:      getEnvBool("MINIO_USE_SSL", false),
		StorageBucket:    getEnv("STORAGE_BUCKET", "detection-images"),
		StoragePublicURL: getEnv("STORAGE_PUBLIC_URL", "http://localhost:9000"),

		BroadcastInterval: getEnvDuration("BROADCAST_INTERVAL", 3*time.Second),
	}

	if cfg.DashboardAPIKey == "" {
		cfg.DashboardAPIKey = cfg.DeviceAPIKey
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns 0 for non-numeric values so that an operator can
// disable a numeric knob by setting it to anything non-numeric.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
