package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds the lib/pq connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config station scheduler service configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	Scheduler struct {
		// Trigger mode for the reconciliation tick
		// Options: polling (internal ticker), http (external caller hits the tick endpoint)
		TriggerMode string

		// Polling mode settings
		Polling struct {
			Interval int // seconds between ticks, default 60
		}

		// HTTP listen address for the tick/report endpoints
		HTTPAddr string

		// TTL (seconds) for cached tick reports and room snapshots in Redis
		ReportTTL int
	}

	// HIS lookup for procedure names at patient intake
	HIS struct {
		Enabled bool
		BaseURL string
		AppID   string
		AppKey  string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "station_scheduler")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Scheduler.TriggerMode = getEnv("SCHED_TRIGGER_MODE", "polling")
	cfg.Scheduler.Polling.Interval = getEnvInt("SCHED_POLL_INTERVAL", 60)
	cfg.Scheduler.HTTPAddr = getEnv("SCHED_HTTP_ADDR", ":8086")
	cfg.Scheduler.ReportTTL = getEnvInt("SCHED_REPORT_TTL", 300)

	cfg.HIS.Enabled = getEnv("HIS_ENABLED", "false") == "true"
	cfg.HIS.BaseURL = getEnv("HIS_BASE_URL", "")
	cfg.HIS.AppID = getEnv("HIS_APP_ID", "")
	cfg.HIS.AppKey = getEnv("HIS_APP_KEY", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.HIS.Enabled && cfg.HIS.BaseURL == "" {
		return nil, fmt.Errorf("HIS_BASE_URL is required when HIS_ENABLED=true")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}
