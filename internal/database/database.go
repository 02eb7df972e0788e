package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/archyards/archyards/internal/config"
)

// Connect establishes a connection to the PostgreSQL database.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	position BIGSERIAL,
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	source_name TEXT NOT NULL,
	source_logo TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	image_url TEXT,
	original_title TEXT NOT NULL,
	original_description TEXT NOT NULL DEFAULT '',
	rewritten_title TEXT,
	rewritten_description TEXT,
	published_at TIMESTAMPTZ NOT NULL,
	published_at_archyards TIMESTAMPTZ,
	category TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]',
	comment_count INTEGER NOT NULL DEFAULT 0,
	social_shares INTEGER NOT NULL DEFAULT 0,
	popularity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	badge TEXT,
	status TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_articles_collection_position
	ON articles (collection, position DESC);
`

// EnsureSchema creates the articles table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// HealthCheck performs a database health check.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected health check result: %d", result)
	}
	return nil
}
