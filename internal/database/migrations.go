package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// migrationLockID is an arbitrary advisory lock key so concurrent
// server instances don't race to run migrations.
const migrationLockID = 987654321

// NewPostgresDB opens and pings a Postgres connection pool.
func NewPostgresDB(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE OR REPLACE FUNCTION update_updated_at_column()
	 RETURNS TRIGGER AS $$
	 BEGIN
	   NEW.updated_at = NOW();
	   RETURN NEW;
	 END;
	 $$ language 'plpgsql'`,

	`CREATE TABLE IF NOT EXISTS upload_sessions (
		id               TEXT PRIMARY KEY,
		file_name        TEXT NOT NULL,
		total_size       BIGINT NOT NULL,
		fingerprint      TEXT NOT NULL DEFAULT '',
		chunk_size       BIGINT NOT NULL,
		total_chunks     INTEGER NOT NULL,
		temp_dir         TEXT NOT NULL,
		state            TEXT NOT NULL DEFAULT 'Open',
		params           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at       TIMESTAMPTZ NOT NULL,
		task_id          TEXT,
		task_name        TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL DEFAULT '',
		original_file_name TEXT NOT NULL,
		original_size     BIGINT NOT NULL,
		original_format   TEXT NOT NULL DEFAULT '',
		output_file_name  TEXT NOT NULL DEFAULT '',
		output_size       BIGINT NOT NULL DEFAULT 0,
		output_format     TEXT NOT NULL DEFAULT '',
		params            JSONB NOT NULL DEFAULT '{}'::jsonb,
		status            TEXT NOT NULL DEFAULT 'Pending',
		progress          INTEGER NOT NULL DEFAULT 0,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at        TIMESTAMPTZ,
		completed_at      TIMESTAMPTZ,
		speed_multiplier  DOUBLE PRECISION NOT NULL DEFAULT 0,
		eta_seconds       BIGINT NOT NULL DEFAULT 0,
		duration_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_position  DOUBLE PRECISION NOT NULL DEFAULT 0,
		failure_reason    TEXT NOT NULL DEFAULT '',
		artifact_path     TEXT NOT NULL DEFAULT '',
		output_path       TEXT NOT NULL DEFAULT '',
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at)`,

	`CREATE TABLE IF NOT EXISTS retention_records (
		task_id              TEXT PRIMARY KEY REFERENCES tasks(id) ON DELETE CASCADE,
		file_name            TEXT NOT NULL,
		file_size            BIGINT NOT NULL,
		downloaded_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		scheduled_cleanup_at TIMESTAMPTZ NOT NULL,
		cleaned_up           BOOLEAN NOT NULL DEFAULT FALSE,
		cleaned_up_at        TIMESTAMPTZ,
		client_id            TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_retention_scheduled ON retention_records(scheduled_cleanup_at) WHERE NOT cleaned_up`,

	`CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`DROP TRIGGER IF EXISTS set_timestamp_tasks ON tasks`,
	`CREATE TRIGGER set_timestamp_tasks
	 BEFORE UPDATE ON tasks
	 FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,
}

// RunMigrations applies the schema under a Postgres advisory lock so
// multiple server instances starting concurrently don't collide.
func RunMigrations(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := db.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer db.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)

	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}

	return nil
}
