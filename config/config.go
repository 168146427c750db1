/*
Package config loads environment-driven settings.

A .env file is honored when present (development convenience); real
environment variables always win. Every setting has a usable default so
the server runs with no configuration at all.
*/
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full application configuration.
type Config struct {
	Port           int
	DBPath         string
	DBRetries      int
	DBRetryDelay   time.Duration
	LogLevel       string
	QRSecret       string
	AllowedOrigins []string
}

// Load reads .env (if any) and the environment.
func Load() *Config {
	// Ignore the error: a missing .env is the normal production case.
	_ = godotenv.Load()

	return &Config{
		Port:           getInt("PORT", 8080),
		DBPath:         getEnv("DB_PATH", "guests.db"),
		DBRetries:      getInt("DB_CONNECT_RETRIES", 3),
		DBRetryDelay:   getDuration("DB_CONNECT_DELAY", 500*time.Millisecond),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		QRSecret:       getEnv("QR_SECRET", "dev-only-secret"),
		AllowedOrigins: getList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
