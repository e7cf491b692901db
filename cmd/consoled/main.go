package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/secopshq/console/pkg/audit"
	"github.com/secopshq/console/pkg/auth"
	"github.com/secopshq/console/pkg/config"
	"github.com/secopshq/console/pkg/gate"
	"github.com/secopshq/console/pkg/httputil"
	"github.com/secopshq/console/pkg/middleware"
	"github.com/secopshq/console/pkg/modules"
	"github.com/secopshq/console/pkg/nav"
	"github.com/secopshq/console/pkg/observability"
	"github.com/secopshq/console/pkg/permsync"
	"github.com/secopshq/console/pkg/rbac"
	"github.com/secopshq/console/pkg/sso"
	"github.com/secopshq/console/pkg/tenants"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Infof("Connected to Redis at %s", cfg.Redis.Addr)

	// Schema migrations
	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	logger.Info("Migrations applied")

	// OpenTelemetry
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := observability.ShutdownOTel(shutdownCtx, otelProviders, logger); err != nil {
			logger.WithError(err).Error("OpenTelemetry shutdown failed")
		}
	}()

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Stores and services
	grants := rbac.NewStore(db)
	moduleStore := modules.NewStore(db)
	licensing := modules.NewService(moduleStore, cfg.Sync.CacheTTL)
	tenantService := tenants.NewService(db, grants, moduleStore)

	source := permsync.NewSource(grants, redisClient, logger, permsync.Options{
		CacheSize:       cfg.Sync.CacheSize,
		CacheTTL:        cfg.Sync.CacheTTL,
		RefreshSchedule: cfg.Sync.RefreshSchedule,
	})
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start permission sync: %w", err)
	}
	defer source.Stop()
	logger.Infof("Permission sync started with refresh schedule %q", cfg.Sync.RefreshSchedule)

	resolver := rbac.NewResolver(source)
	sessions := auth.NewSessionStore(redisClient, cfg.Session.TTL)
	tokens := auth.NewTokenStore(db)

	auditSink, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	navLoader, err := nav.NewLoader(cfg.Nav.TreePath, logger)
	if err != nil {
		return fmt.Errorf("failed to load navigation tree: %w", err)
	}
	defer navLoader.Close()

	ssoStorage := sso.NewStorage(db)
	ssoFactory := sso.NewProviderFactory(cfg.Server.BaseURL)
	provisioner := sso.NewProvisioner(db, tenantService, grants)
	ssoHandlers := sso.NewHandlers(ssoStorage, ssoFactory, provisioner, sessions, logger)

	// Router
	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.CORSMiddleware(cfg.Server.AllowedOrigins),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		observability.HTTPMetricsMiddleware(metrics),
	)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Login flow routes carry no session yet, so they sit outside the
	// auth chain. Specific routes registered first win over the
	// protected catch-all below.
	ssoHandlers.RegisterAuthRoutes(api)

	protected := api.NewRoute().Subrouter()
	sessionAuth := middleware.NewSessionAuth(sessions, tokens, grants, false)
	protected.Use(
		sessionAuth.Handler,
		middleware.NewRateLimitMiddleware(redisClient).Handler,
		middleware.NewAccessMiddleware(resolver).Handler,
		middleware.TenantGuard,
		audit.NewMiddleware(auditSink, logger, middleware.SessionActor).Handler,
	)

	rbac.NewHandlers(grants, source, middleware.SessionActor).RegisterRoutes(protected)
	gate.NewHandlers().RegisterRoutes(protected)
	nav.NewHandlers(navLoader, licensing).RegisterRoutes(protected)
	tenants.NewHandlers(tenantService, licensing, source).RegisterRoutes(protected)
	audit.NewHandlers(auditSink).RegisterRoutes(protected)
	auth.NewTokenHandlers(tokens).RegisterRoutes(protected)
	ssoHandlers.RegisterAdminRoutes(protected)

	// Health and metrics on a separate listener so probes bypass the
	// API middleware chain.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Audit retention
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Audit.PurgeSchedule, func() {
		defer observability.RecoverPanic(logger, "audit purge job")
		purgeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		policy := audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays}
		removed, err := auditSink.Purge(purgeCtx, policy)
		if err != nil {
			logger.WithError(err).Error("Audit purge failed")
			return
		}
		logger.Infof("Audit purge removed %d events older than %d days", removed, cfg.Audit.RetentionDays)
	}); err != nil {
		return fmt.Errorf("failed to schedule audit purge: %w", err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
				metrics.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
				metrics.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
				metrics.RedisConnectionsActive.Set(float64(redisClient.PoolStats().TotalConns))
			}
		}
	})
	g.Go(func() error {
		logger.Infof("Console API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Infof("Shutting down with %s grace period", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("API server shutdown failed")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Health server shutdown failed")
		}
		return nil
	})

	return g.Wait()
}

// runMigrations applies every package's schema in dependency order.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if err := rbac.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("rbac: %w", err)
	}
	if err := modules.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("modules: %w", err)
	}
	if err := tenants.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("tenants: %w", err)
	}
	if err := sso.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("sso: %w", err)
	}
	if err := audit.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	for i, stmt := range auth.TokenMigrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("auth migration %d: %w", i, err)
		}
	}
	return nil
}
