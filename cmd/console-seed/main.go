package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/secopshq/console/pkg/audit"
	"github.com/secopshq/console/pkg/auth"
	"github.com/secopshq/console/pkg/modules"
	"github.com/secopshq/console/pkg/rbac"
	"github.com/secopshq/console/pkg/sso"
	"github.com/secopshq/console/pkg/tenants"
)

var (
	dbURL      = flag.String("db-url", getEnv("CONSOLE_POSTGRES_URL", "postgres://localhost/console?sslmode=disable"), "PostgreSQL connection URL")
	tenantID   = flag.Int64("tenant", 0, "Seed only this tenant (default: all tenants)")
	applyPlans = flag.Bool("apply-plans", false, "Reset each tenant's licensed modules to its plan tier defaults")
	skipSchema = flag.Bool("skip-schema", false, "Skip running schema migrations before seeding")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if !*skipSchema {
		if err := runMigrations(ctx, db); err != nil {
			log.Fatalf("Migrations failed: %v", err)
		}
		log.Println("✓ Schema migrations applied")
	}

	moduleStore := modules.NewStore(db)
	for _, m := range modules.DefaultRegistry() {
		if err := moduleStore.UpsertModule(ctx, m); err != nil {
			log.Fatalf("Failed to upsert module %s: %v", m.ID, err)
		}
	}
	log.Printf("✓ Module registry seeded (%d modules)", len(modules.DefaultRegistry()))

	ids, err := tenantIDs(ctx, db)
	if err != nil {
		log.Fatalf("Failed to list tenants: %v", err)
	}
	if len(ids) == 0 {
		log.Println("No tenants to seed")
		return
	}

	grants := rbac.NewStore(db)
	for _, id := range ids {
		if err := grants.SeedRoleGrants(ctx, id); err != nil {
			log.Fatalf("Failed to seed role grants for tenant %d: %v", id, err)
		}
	}
	log.Printf("✓ Default role grants seeded for %d tenant(s)", len(ids))

	if *applyPlans {
		for _, id := range ids {
			tier, err := planTier(ctx, db, id)
			if err != nil {
				log.Fatalf("Failed to read plan tier for tenant %d: %v", id, err)
			}
			if err := moduleStore.SetTenantModules(ctx, id, tenants.PlanModules(tier)); err != nil {
				log.Fatalf("Failed to set modules for tenant %d: %v", id, err)
			}
		}
		log.Printf("✓ Plan tier module sets applied to %d tenant(s)", len(ids))
	}

	log.Println("Seeding completed")
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if err := rbac.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := modules.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := tenants.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := sso.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := audit.RunMigrations(ctx, db); err != nil {
		return err
	}
	for _, stmt := range auth.TokenMigrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func tenantIDs(ctx context.Context, db *sql.DB) ([]int64, error) {
	if *tenantID != 0 {
		return []int64{*tenantID}, nil
	}
	rows, err := db.QueryContext(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func planTier(ctx context.Context, db *sql.DB, id int64) (tenants.PlanTier, error) {
	var tier string
	if err := db.QueryRowContext(ctx, `SELECT plan_tier FROM tenants WHERE id = $1`, id).Scan(&tier); err != nil {
		return "", err
	}
	return tenants.PlanTier(tier), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
