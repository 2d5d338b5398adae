package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Telegram
	TelegramToken string
	ModeratorChat int64
	AdminChat     int64

	// Market data
	HyperliquidURL string

	// Infrastructure
	SQLitePath    string
	RedisAddr     string // empty disables the Redis mirror
	RedisPassword string
	MetricsAddr   string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	return &Config{
		TelegramToken: mustEnv("TELEGRAM_BOT_TOKEN"),
		ModeratorChat: mustEnvInt64("MODERATOR_CHAT_ID"),
		AdminChat:     getEnvInt64("ADMIN_CHAT_ID", 0),

		HyperliquidURL: getEnv("HYPERLIQUID_URL", "https://api.hyperliquid.xyz/info"),

		SQLitePath:    getEnv("SQLITE_PATH", "data/alertbot.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func mustEnvInt64(key string) int64 {
	n, err := strconv.ParseInt(mustEnv(key), 10, 64)
	if err != nil {
		log.Fatalf("[config] env var %s must be an integer: %v", key, err)
	}
	return n
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] env var %s: invalid integer %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
