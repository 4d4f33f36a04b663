package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Auth configuration
	JWTSecret string

	// Payment gateway configuration
	GatewayName           string
	GatewayMerchantID     string
	GatewaySecret         string
	GatewayBaseURL        string
	GatewayCallbackURL    string
	GatewayTimeoutSeconds int

	// Download entitlement configuration
	MaxDownloads       int
	DownloadExpireDays int

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	ServiceName string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                  getEnv("PORT", "8080"),
		Mode:                  getEnv("GIN_MODE", "debug"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		GatewayName:           getEnv("GATEWAY_NAME", "paytm"),
		GatewayMerchantID:     getEnv("GATEWAY_MERCHANT_ID", ""),
		GatewaySecret:         getEnv("GATEWAY_SECRET", ""),
		GatewayBaseURL:        getEnv("GATEWAY_BASE_URL", "https://securegw-stage.paytm.in"),
		GatewayCallbackURL:    getEnv("GATEWAY_CALLBACK_URL", ""),
		GatewayTimeoutSeconds: getEnvInt("GATEWAY_TIMEOUT_SECONDS", 15),
		MaxDownloads:          getEnvInt("MAX_DOWNLOADS", 5),
		DownloadExpireDays:    getEnvInt("DOWNLOAD_EXPIRE_DAYS", 30),
		BrevoAPIKey:           getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:        getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:         getEnv("BREVO_FROM_NAME", "Book Store"),
		ServiceName:           getEnv("SERVICE_NAME", "Bookstore Payment Service"),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
