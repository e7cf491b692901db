// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	CONSOLE_HOST="0.0.0.0"
//	CONSOLE_PORT="8080"
//	CONSOLE_HEALTH_PORT="9090"
//	CONSOLE_BASE_URL="https://console.example.com"
//	CONSOLE_ALLOWED_ORIGINS="https://app.example.com"
//	CONSOLE_READ_TIMEOUT="30s"
//	CONSOLE_WRITE_TIMEOUT="30s"
//
// Database and Redis settings:
//
//	CONSOLE_POSTGRES_URL="postgres://localhost/console"
//	CONSOLE_POSTGRES_MAX_OPEN_CONNS="25"
//	CONSOLE_REDIS_ADDR="localhost:6379"
//	CONSOLE_REDIS_POOL_SIZE="10"
//
// Session, navigation, sync and audit settings:
//
//	CONSOLE_SESSION_TTL="12h"
//	CONSOLE_NAV_TREE_PATH="nav.json"
//	CONSOLE_SYNC_CACHE_SIZE="4096"
//	CONSOLE_SYNC_REFRESH_SCHEDULE="@every 10m"
//	CONSOLE_AUDIT_RETENTION_DAYS="90"
//	CONSOLE_AUDIT_PURGE_SCHEDULE="@daily"
//
// Observability settings:
//
//	CONSOLE_LOG_LEVEL="info"  # debug, info, warn, error
//	CONSOLE_METRICS_ENABLED="true"
//	CONSOLE_OTEL_ENABLED="true"
//	CONSOLE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %v\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/observability: Uses observability configuration
//   - pkg/permsync: Uses sync configuration
package config
