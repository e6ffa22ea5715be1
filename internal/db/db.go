// Package db provides database connection helpers and schema bootstrap.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// schema is applied idempotently at startup. Delivery sub-documents live in
// JSONB; the unique index on (source_event_id, recipient_id, type) carries
// the notification-creation idempotency guarantee.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS profile_projections (
	   profile_id         TEXT PRIMARY KEY,
	   subscriber_id      TEXT NOT NULL,
	   subscriber_email   TEXT NOT NULL DEFAULT '',
	   desired_roles      TEXT[] NOT NULL DEFAULT '{}',
	   skill_ids          TEXT[] NOT NULL DEFAULT '{}',
	   skill_names        TEXT[] NOT NULL DEFAULT '{}',
	   experience_years   INT NOT NULL DEFAULT 0,
	   desired_locations  TEXT[] NOT NULL DEFAULT '{}',
	   salary_min         BIGINT NOT NULL DEFAULT 0,
	   salary_max         BIGINT NOT NULL DEFAULT 0,
	   salary_currency    TEXT NOT NULL DEFAULT '',
	   employment_types   TEXT[] NOT NULL DEFAULT '{}',
	   is_active          BOOLEAN NOT NULL DEFAULT true,
	   is_premium         BOOLEAN NOT NULL DEFAULT false,
	   premium_expires_at TIMESTAMPTZ,
	   updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	 )`,
	`CREATE INDEX IF NOT EXISTS idx_projections_subscriber
	   ON profile_projections (subscriber_id)`,
	`CREATE INDEX IF NOT EXISTS idx_projections_candidates
	   ON profile_projections (is_active, is_premium)`,
	`CREATE TABLE IF NOT EXISTS notifications (
	   id              TEXT PRIMARY KEY,
	   recipient_id    TEXT NOT NULL,
	   recipient_type  TEXT NOT NULL,
	   recipient_email TEXT NOT NULL DEFAULT '',
	   type            TEXT NOT NULL,
	   title           TEXT NOT NULL,
	   message         TEXT NOT NULL DEFAULT '',
	   data            JSONB NOT NULL DEFAULT '{}',
	   deliveries      JSONB NOT NULL DEFAULT '[]',
	   priority        TEXT NOT NULL DEFAULT 'NORMAL',
	   is_read         BOOLEAN NOT NULL DEFAULT false,
	   read_at         TIMESTAMPTZ,
	   source_event_id TEXT NOT NULL,
	   created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	 )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_dedup
	   ON notifications (source_event_id, recipient_id, type)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient
	   ON notifications (recipient_id, created_at DESC)`,
}

// EnsureSchema creates the pipeline's tables and indexes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
