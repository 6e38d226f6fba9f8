package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"askdb/internal/config"
	"askdb/internal/repository/postgres"
	"askdb/internal/seed"

	"github.com/joho/godotenv"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all service tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't create demo data")
	dropDemo := flag.Bool("drop-demo", false, "Drop the demo metric tables and exit")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *dropDemo) {
		log.Fatalf("BLOCKED: cannot run destructive operations (--drop-tables or --drop-demo) in production environment")
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	log.Printf("Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	// Create database connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	seeder := seed.NewSeeder(pool, tables, logger)

	if *dropDemo {
		if err := seeder.DropDemoData(ctx); err != nil {
			log.Fatalf("Failed to drop demo tables: %v", err)
		}
		log.Println("Demo tables dropped")
		return
	}

	if *dropTables {
		log.Println("Dropping service tables...")
		if err := seeder.Drop(ctx); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("Tables dropped")
	}

	log.Println("Ensuring database schema is up to date...")
	if err := seeder.Schema(ctx); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("Schema ready")

	if *schemaOnly {
		log.Println("Schema setup complete (schema-only mode)")
		return
	}

	log.Println("Creating demo metric tables...")
	if err := seeder.SeedDemoData(ctx); err != nil {
		log.Fatalf("Failed to seed demo data: %v", err)
	}
	log.Println("Seeding complete. Start the server to index the new tables.")
}
