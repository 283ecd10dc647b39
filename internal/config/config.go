package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string
	Environment  string

	// AdminToken gates the sync-key admin endpoints. Empty disables them.
	AdminToken string

	// MiniMax TTS credentials. Voice capability is only offered when
	// both are set and the actor has a voice ID.
	MinimaxGroupID string
	MinimaxAPIKey  string

	// RefreshEveryNTurns is the memory refresh cadence in user turns.
	RefreshEveryNTurns int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "3001"),
		DatabasePath: getEnv("DATABASE_PATH", "./lumichat.db"),
		Environment:  getEnv("ENVIRONMENT", "development"),

		AdminToken: getEnv("ADMIN_TOKEN", ""),

		MinimaxGroupID: getEnv("MINIMAX_GROUP_ID", ""),
		MinimaxAPIKey:  getEnv("MINIMAX_API_KEY", ""),

		RefreshEveryNTurns: getIntEnv("REFRESH_EVERY_N_TURNS", 5),
	}
}

// TTSConfigured reports whether MiniMax credentials are present.
func (c *Config) TTSConfigured() bool {
	return c.MinimaxGroupID != "" && c.MinimaxAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
