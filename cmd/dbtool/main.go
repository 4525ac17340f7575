package main

import (
	"context"
	"database/sql"
	"field-route-service/internal/adapters/repositories"
	"field-route-service/internal/config"
	"field-route-service/internal/platform/db"
	"field-route-service/internal/platform/logging"
	"flag"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

func main() {
	seedOnly := flag.Bool("seed-only", false, "skip schema creation")
	skipSeed := flag.Bool("skip-seed", false, "create the schema without loading meetings")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	if err := initAndSeed(ctx, conn, cfg.SeedPath, !*seedOnly, !*skipSeed); err != nil {
		log.Fatal().Err(err).Msg("dbtool")
	}
}

func initAndSeed(ctx context.Context, conn *sql.DB, seedPath string, schema, seed bool) error {
	if schema {
		log.Info().Msg("initializing database schema")
		if err := repositories.InitSchema(ctx, conn); err != nil {
			return fmt.Errorf("init and seed: %w", err)
		}
		log.Info().Msg("schema ready")
	}

	if seed {
		log.Info().Str("seed_path", seedPath).Msg("seeding meetings")
		if err := repositories.SeedMeetingsFromJSON(ctx, conn, seedPath); err != nil {
			return fmt.Errorf("init and seed: %w", err)
		}
		log.Info().Msg("seeding complete")
	}

	return nil
}
