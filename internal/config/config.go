package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramBotToken string
	GeminiAPIKey     string
	DatabaseURL      string
	HTTPPort         string
	LogLevel         string
	JWTSecret        string
	OperatorPassHash string
	AuthorityURL     string

	SurveillanceIntervalMinutes int
	FollowupIntervalMinutes     int
	AnomalyThreshold            int
	SpikeWindowHours            int
	BaselineWindows             int
	FollowupBatchLimit          int
	ShutdownGraceSeconds        int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:      getEnv("DATABASE_URL", "health_sentinel.db"),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		OperatorPassHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		AuthorityURL:     getEnv("AUTHORITY_ENDPOINT", ""),

		SurveillanceIntervalMinutes: getEnvAsInt("SURVEILLANCE_INTERVAL_MINUTES", 15),
		FollowupIntervalMinutes:     getEnvAsInt("FOLLOWUP_INTERVAL_MINUTES", 15),
		AnomalyThreshold:            getEnvAsInt("ANOMALY_THRESHOLD", 5),
		SpikeWindowHours:            getEnvAsInt("SPIKE_WINDOW_HOURS", 24),
		BaselineWindows:             getEnvAsInt("BASELINE_WINDOWS", 4),
		FollowupBatchLimit:          getEnvAsInt("FOLLOWUP_BATCH_LIMIT", 50),
		ShutdownGraceSeconds:        getEnvAsInt("SHUTDOWN_GRACE_SECONDS", 30),
	}

	if AppConfig.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
