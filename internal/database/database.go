package database

import (
	"context"
	"fmt"
	"log"

	"fedfollow/internal/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

func Connect(cfg *config.Config) (*sqlx.DB, error) {

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Connected to database successfully")
	return db, nil
}

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS actors (
		id                    BIGSERIAL PRIMARY KEY,
		username              TEXT NOT NULL,
		is_remote             BOOLEAN NOT NULL DEFAULT FALSE,
		external_actor_url    TEXT,
		inbox_url             TEXT,
		shared_inbox_url      TEXT,
		auto_accept_followers BOOLEAN,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS actors_username_remote_idx ON actors (username, is_remote)`,
	`CREATE TABLE IF NOT EXISTS following (
		id               BIGSERIAL PRIMARY KEY,
		user_id          BIGINT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
		actor_url        TEXT NOT NULL,
		accepted         BOOLEAN NOT NULL DEFAULT FALSE,
		inbox_url        TEXT,
		shared_inbox_url TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS following_user_actor_idx ON following (user_id, actor_url)`,
	`CREATE TABLE IF NOT EXISTS follower (
		id               BIGSERIAL PRIMARY KEY,
		user_id          BIGINT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
		actor_url        TEXT NOT NULL,
		accepted         BOOLEAN NOT NULL DEFAULT FALSE,
		inbox_url        TEXT,
		shared_inbox_url TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS follower_user_actor_idx ON follower (user_id, actor_url)`,
	`CREATE INDEX IF NOT EXISTS follower_pending_idx ON follower (user_id, created_at DESC) WHERE NOT accepted`,
}

// EnsureSchema creates the relationship tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}
