package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies environment variable overrides.
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("SWITCHYARD_API_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Service.APIPort = p
		}
	}

	if logLevel := os.Getenv("SWITCHYARD_LOG_LEVEL"); logLevel != "" {
		cfg.Service.LogLevel = logLevel
	}

	if dsn := os.Getenv("SWITCHYARD_STORE_DSN"); dsn != "" {
		cfg.Store.DSN = dsn
	}

	if path := os.Getenv("SWITCHYARD_STATE_PATH"); path != "" {
		cfg.Store.Path = path
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
