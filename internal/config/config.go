// Package config provides configuration management for the playout server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Logging
	LogLevel  string
	LogFormat string

	// CORS configuration
	CORSOrigin string

	// Studio and show style definitions loaded at startup (TOML), optional
	StudioConfigPath string

	// Take guards
	TakeDebounce  time.Duration // minimum time between two takes
	AutoNextGuard time.Duration // takes this close to an auto-next are rejected

	// Lookahead settle delay after an object that needs preroll
	LookaheadSettle time.Duration

	// How long merged blueprint configuration is reused
	BlueprintConfigTTL time.Duration
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "4000"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "file:./playout.db"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// CORS
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),

		StudioConfigPath: getEnv("STUDIO_CONFIG_PATH", ""),

		TakeDebounce:       time.Duration(getEnvInt("TAKE_DEBOUNCE_MS", 1000)) * time.Millisecond,
		AutoNextGuard:      time.Duration(getEnvInt("AUTONEXT_GUARD_MS", 1000)) * time.Millisecond,
		LookaheadSettle:    time.Duration(getEnvInt("LOOKAHEAD_SETTLE_MS", 2000)) * time.Millisecond,
		BlueprintConfigTTL: getEnvDuration("BLUEPRINT_CONFIG_TTL", 5*time.Minute),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration parses a Go duration ("30s", "5m") or falls back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
