package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Redis
	RedisURL string

	// CORS
	AllowedOrigins []string

	// Rooms
	RoomMaxVariables int
	RoomIdleTTL      time.Duration
	JanitorInterval  time.Duration

	// Per-connection variable update limiter
	VarRateLimit  int
	VarRateWindow time.Duration

	// HTTP API limiter (Redis-backed)
	APIRateLimit  int
	APIRateWindow time.Duration

	// Logging
	LogLevel string
}

func Load() *Config {
	// Load .env file in development
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// CORS
		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		// Rooms
		RoomMaxVariables: parseInt(getEnv("ROOM_MAX_VARIABLES", "10"), 10),
		RoomIdleTTL:      parseDuration(getEnv("ROOM_IDLE_TTL", "1h"), time.Hour),
		JanitorInterval:  parseDuration(getEnv("JANITOR_INTERVAL", "1m"), time.Minute),

		// Variable update limiter: 30 updates per second per connection
		VarRateLimit:  parseInt(getEnv("VAR_RATE_LIMIT", "30"), 30),
		VarRateWindow: parseDuration(getEnv("VAR_RATE_WINDOW", "1s"), time.Second),

		// API limiter: 60 requests per minute per IP
		APIRateLimit:  parseInt(getEnv("API_RATE_LIMIT", "60"), 60),
		APIRateWindow: parseDuration(getEnv("API_RATE_WINDOW", "1m"), time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return v
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseStringSlice(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
