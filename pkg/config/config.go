package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/secopshq/console/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Session configuration
	Session SessionConfig

	// Navigation tree configuration
	Nav NavConfig

	// Permission sync configuration
	Sync SyncConfig

	// Audit log configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// BaseURL is the externally visible URL, used to build SSO
	// callback addresses.
	BaseURL string

	// AllowedOrigins lists origins permitted by CORS.
	AllowedOrigins []string

	// MaxBodyBytes caps request body size.
	MaxBodyBytes int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// SessionConfig holds session store settings
type SessionConfig struct {
	TTL          time.Duration
	CookieSecure bool
}

// NavConfig holds navigation tree settings
type NavConfig struct {
	// TreePath is the JSON file watched for navigation changes.
	TreePath string
}

// SyncConfig holds permission sync cache settings
type SyncConfig struct {
	CacheSize       int
	CacheTTL        time.Duration
	RefreshSchedule string
}

// AuditConfig holds audit log retention settings
type AuditConfig struct {
	RetentionDays int
	PurgeSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Session:       loadSessionConfig(),
		Nav:           loadNavConfig(),
		Sync:          loadSyncConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CONSOLE_HOST", "0.0.0.0"),
		Port:            getEnv("CONSOLE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CONSOLE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CONSOLE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CONSOLE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CONSOLE_SHUTDOWN_TIMEOUT", 30*time.Second),
		BaseURL:         getEnv("CONSOLE_BASE_URL", "http://localhost:8080"),
		AllowedOrigins:  getEnvList("CONSOLE_ALLOWED_ORIGINS", []string{"*"}),
		MaxBodyBytes:    getEnvInt64("CONSOLE_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("CONSOLE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("CONSOLE_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("CONSOLE_POSTGRES_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("CONSOLE_POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("CONSOLE_POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("CONSOLE_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("CONSOLE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("CONSOLE_REDIS_DB", 0),
		PoolSize: getEnvInt("CONSOLE_REDIS_POOL_SIZE", 10),
	}
}

// loadSessionConfig loads session configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:          getEnvDuration("CONSOLE_SESSION_TTL", 12*time.Hour),
		CookieSecure: getEnvBool("CONSOLE_SESSION_COOKIE_SECURE", true),
	}
}

// loadNavConfig loads navigation configuration from environment
func loadNavConfig() NavConfig {
	return NavConfig{
		TreePath: getEnv("CONSOLE_NAV_TREE_PATH", "nav.json"),
	}
}

// loadSyncConfig loads permission sync configuration from environment
func loadSyncConfig() SyncConfig {
	return SyncConfig{
		CacheSize:       getEnvInt("CONSOLE_SYNC_CACHE_SIZE", 4096),
		CacheTTL:        getEnvDuration("CONSOLE_SYNC_CACHE_TTL", 5*time.Minute),
		RefreshSchedule: getEnv("CONSOLE_SYNC_REFRESH_SCHEDULE", "@every 10m"),
	}
}

// loadAuditConfig loads audit retention configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		RetentionDays: getEnvInt("CONSOLE_AUDIT_RETENTION_DAYS", 90),
		PurgeSchedule: getEnv("CONSOLE_AUDIT_PURGE_SCHEDULE", "@daily"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("CONSOLE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CONSOLE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CONSOLE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CONSOLE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CONSOLE_OTEL_SERVICE_NAME", "console"),
		OTelServiceVersion: getEnv("CONSOLE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CONSOLE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	// Validate database config
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate redis config
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	// Validate session config
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	// Validate navigation config
	if c.Nav.TreePath == "" {
		return fmt.Errorf("navigation tree path is required")
	}

	// Validate audit config
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
