package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	OpenAIAPIKey       string
	OpenAIModel        string
	BinanceBaseURL     string
	Symbol             string
	Interval           string
	HistoryDays        int
	CacheTTLSeconds    int
	MinRequestInterval int // seconds between model invocations
	RunTimeoutSeconds  int // wall-clock budget for one orchestrator run
	RequestTimeout     int // seconds, per HTTP request
	LogLevel           string
	SystemActor        string

	ProxyKey   string
	AdminKey   string
	ServerPort string

	TelegramBotToken string
	TelegramChatID   int64

	Database DatabaseConfig
}

// DatabaseConfig holds PostgreSQL connection parameters
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnvWithDefault("OPENAI_MODEL", "gpt-4"),
		BinanceBaseURL:     getEnvWithDefault("BINANCE_BASE_URL", "https://api.binance.com"),
		Symbol:             getEnvWithDefault("SYMBOL", "BTCUSDT"),
		Interval:           getEnvWithDefault("INTERVAL", "1d"),
		HistoryDays:        getEnvIntWithDefault("HISTORY_DAYS", 1000),
		CacheTTLSeconds:    getEnvIntWithDefault("CACHE_TTL_SECONDS", 300),
		MinRequestInterval: getEnvIntWithDefault("MIN_REQUEST_INTERVAL_SECONDS", 15),
		RunTimeoutSeconds:  getEnvIntWithDefault("RUN_TIMEOUT_SECONDS", 600),
		RequestTimeout:     getEnvIntWithDefault("REQUEST_TIMEOUT", 30),
		LogLevel:           getEnvWithDefault("LOG_LEVEL", "info"),
		SystemActor:        getEnvWithDefault("SYSTEM_ACTOR", "system"),
		ProxyKey:           os.Getenv("PROXY_KEY"),
		AdminKey:           os.Getenv("ADMIN_KEY"),
		ServerPort:         getEnvWithDefault("SERVER_PORT", "8080"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:     getEnvInt64WithDefault("TELEGRAM_CHAT_ID", 0),
		Database: DatabaseConfig{
			Host:     getEnvWithDefault("DB_HOST", "localhost"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     getEnvWithDefault("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   getEnvWithDefault("DB_NAME", "predictor"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},
	}

	return cfg, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
