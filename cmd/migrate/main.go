package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"LaunchLedger/internal/config"
	"LaunchLedger/internal/observability"
	"LaunchLedger/internal/persistence"
)

func usage() {
	fmt.Println("Usage: migrate <up|down|status>")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  status - list migrations and whether each is applied")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  LAUNCH_DATABASE_URL    - Postgres connection string (required)")
	fmt.Println("  LAUNCH_MIGRATIONS_DIR  - path to migrations directory (default: migrations)")
	fmt.Println("  LAUNCH_CONFIG          - optional config file")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := observability.NewLogger("migrate")

	cfg, err := config.Load(os.Getenv("LAUNCH_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Database.InMemory() {
		log.Fatal().Msg("LAUNCH_DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := persistence.OpenDB(ctx, cfg.Database.URL, 2, 1, time.Minute)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, cfg.Database.MigrationsDir, log)

	switch os.Args[1] {
	case "up":
		n, err := migrator.Up(ctx)
		if err != nil {
			log.Fatal().Err(err).Int("applied", n).Msg("migrate up")
		}
		log.Info().Int("applied", n).Msg("all migrations applied")

	case "down":
		rolledBack, err := migrator.Down(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("migrate down")
		}
		if !rolledBack {
			log.Info().Msg("nothing to roll back")
			return
		}
		log.Info().Msg("last migration rolled back")

	case "status":
		status, err := migrator.Status(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("migration status")
		}
		for _, s := range status {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %s\n", state, s.Filename)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down' or 'status')\n", os.Args[1])
		os.Exit(1)
	}
}
