package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/mcdev12/cafeclock/go/internal/dbconfig"
	"github.com/mcdev12/cafeclock/go/internal/outbox"
	"github.com/mcdev12/cafeclock/go/internal/snapshot"
	"github.com/rs/zerolog/log"
)

// setupDatabase opens the database/sql handle used by the outbox
func setupDatabase(ctx context.Context, dbConfig dbconfig.Config) (*sql.DB, error) {
	database, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := outbox.EnsureSchema(ctx, database); err != nil {
		database.Close()
		return nil, err
	}

	log.Info().
		Str("user", dbConfig.User).
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("connected to database")
	return database, nil
}

// setupSnapshotStore opens the pgx pool backing the countdown snapshot store
func setupSnapshotStore(ctx context.Context, dbConfig dbconfig.Config) (*snapshot.Store, *pgxpool.Pool, error) {
	store, pool, err := snapshot.Open(ctx, dbConfig.DSN())
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("database", dbConfig.Database).Msg("snapshot store ready")
	return store, pool, nil
}
