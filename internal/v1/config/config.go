// Package config validates and exposes process configuration for the chat server.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration for the chat server.
type Config struct {
	// Validated variables with defaults
	Port string

	// Optional variables with defaults
	AdminAddr         string
	GoEnv             string
	LogLevel          string
	RoomCatalogPath   string
	OtelCollectorAddr string
	ShutdownTimeout   time.Duration
}

// ValidateEnv reads and validates the environment variables and returns a Config object.
// Returns an error if any variable is invalid; unset variables take their defaults.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// PORT (defaults to "8080"; must be a valid port number)
	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: ADMIN_ADDR (defaults to ":9090")
	cfg.AdminAddr = getEnvOrDefault("ADMIN_ADDR", ":9090")

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Optional: ROOM_CATALOG_PATH overrides the embedded room catalog.
	cfg.RoomCatalogPath = os.Getenv("ROOM_CATALOG_PATH")

	// Optional: OTEL_COLLECTOR_ADDR enables tracing when set.
	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	// Optional: SHUTDOWN_TIMEOUT_SECONDS (defaults to 5s)
	cfg.ShutdownTimeout = 5 * time.Second
	if raw := os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			errs = append(errs, fmt.Sprintf("SHUTDOWN_TIMEOUT_SECONDS must be a non-negative integer (got '%s')", raw))
		} else {
			cfg.ShutdownTimeout = time.Duration(secs) * time.Second
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

// logValidatedConfig logs the validated configuration.
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ environment configuration validated",
		"port", cfg.Port,
		"admin_addr", cfg.AdminAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"room_catalog_path", cfg.RoomCatalogPath,
		"otel_collector_addr", cfg.OtelCollectorAddr,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
