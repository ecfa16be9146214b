package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the portal service.
type Config struct {
	AppPort          int
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	RedisHost        string
	RedisPort        int
	RedisPassword    string
	CacheTTL         time.Duration
	EnableAudit      bool
	BulkWorkers      int
}

// LoadConfig reads configuration from the environment, honoring a local
// .env file when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:          envInt("APP_PORT", 8080),
		PostgresHost:     envString("POSTGRES_HOST", "localhost"),
		PostgresPort:     envInt("POSTGRES_PORT", 5432),
		PostgresUser:     envString("POSTGRES_USER", "portal"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       envString("POSTGRES_DB", "portal"),
		RedisHost:        envString("REDIS_HOST", "localhost"),
		RedisPort:        envInt("REDIS_PORT", 6379),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		CacheTTL:         time.Duration(envInt("CACHE_TTL_MINUTES", 30)) * time.Minute,
		EnableAudit:      envBool("ENABLE_AUDIT", true),
		BulkWorkers:      envInt("BULK_WORKERS", 10),
	}

	if cfg.PostgresPassword == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
