// Package store is the PostgreSQL persistence layer: conversation history,
// core memory blocks, archival facts, daily summaries, and cron jobs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the PostgreSQL connection and the agent timezone used for
// day boundaries and prompt timestamps.
type Store struct {
	DB  *sql.DB
	loc *time.Location

	logger *slog.Logger
}

// Options configures the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectRetries is how many extra ping attempts to make before
	// giving up (covers Postgres still starting alongside the agent).
	ConnectRetries int
	RetryDelay     time.Duration
}

// Open connects to PostgreSQL, verifies connectivity, and applies the
// schema. The connection pool uses sane server defaults unless overridden.
func Open(databaseURL string, loc *time.Location, logger *slog.Logger, opts Options) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 10
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = 5 * time.Minute
	}
	if opts.ConnectRetries == 0 {
		opts.ConnectRetries = 2
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 2 * time.Second
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	if err := pingWithRetry(db, opts.ConnectRetries, opts.RetryDelay, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		DB:     db,
		loc:    loc,
		logger: logger.With("component", "store"),
	}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

func pingWithRetry(db *sql.DB, retries int, delay time.Duration, logger *slog.Logger) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < retries {
			logger.Warn("database not ready, retrying", "attempt", attempt+1, "error", err)
			time.Sleep(delay)
		}
	}
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Location returns the agent timezone the store was opened with.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Migrate applies the schema. All statements are idempotent so this runs
// on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schemaDDL); err != nil {
		return err
	}
	// Seed the singleton system instructions row.
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO system_instructions (id, content) VALUES (1, '') ON CONFLICT DO NOTHING`)
	return err
}

// Status returns detailed database health for the /health endpoint.
func (s *Store) Status(ctx context.Context) map[string]any {
	start := time.Now()
	err := s.DB.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return map[string]any{
			"healthy": false,
			"error":   err.Error(),
			"latency": latency.String(),
		}
	}

	var version string
	if err := s.DB.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		version = "unknown"
	}

	stats := s.DB.Stats()
	return map[string]any{
		"healthy":    true,
		"version":    version,
		"latency":    latency.String(),
		"open_conns": stats.OpenConnections,
		"in_use":     stats.InUse,
		"idle":       stats.Idle,
	}
}

const schemaDDL = `
-- Conversation history, append-only per thread
CREATE TABLE IF NOT EXISTS messages (
    id         SERIAL PRIMARY KEY,
    thread_id  TEXT NOT NULL,
    idx        INTEGER NOT NULL,
    role       TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'tool')),
    content    TEXT NOT NULL,
    reasoning  TEXT,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    metadata   JSONB DEFAULT '{}',
    UNIQUE (thread_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);

-- Always-in-context editable memory blocks
CREATE TABLE IF NOT EXISTS core_memory (
    block_type TEXT PRIMARY KEY CHECK (block_type IN ('user', 'identity', 'ideaspace')),
    content    TEXT DEFAULT '',
    version    INTEGER DEFAULT 1,
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

-- Prior versions of core memory blocks, for rollback
CREATE TABLE IF NOT EXISTS core_memory_history (
    id         SERIAL PRIMARY KEY,
    block_type TEXT NOT NULL,
    content    TEXT NOT NULL,
    version    INTEGER NOT NULL,
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

-- Read-only operator instructions, singleton row
CREATE TABLE IF NOT EXISTS system_instructions (
    id         INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    content    TEXT DEFAULT '',
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

-- Curated long-term facts
CREATE SCHEMA IF NOT EXISTS archival;
CREATE TABLE IF NOT EXISTS archival.facts (
    id         SERIAL PRIMARY KEY,
    content    TEXT NOT NULL,
    category   TEXT,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    metadata   JSONB DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_facts_category ON archival.facts(category);
CREATE INDEX IF NOT EXISTS idx_facts_created ON archival.facts(created_at DESC);

-- Scheduled jobs
CREATE TABLE IF NOT EXISTS cron_jobs (
    id              SERIAL PRIMARY KEY,
    name            TEXT NOT NULL,
    description     TEXT,
    instructions    TEXT NOT NULL,
    timezone        TEXT DEFAULT 'America/New_York',
    schedule_days   INTEGER[],
    schedule_time   TEXT,
    run_date        DATE,
    is_one_time     BOOLEAN DEFAULT FALSE,
    status          TEXT DEFAULT 'active' CHECK (status IN ('active', 'paused')),
    created_by      TEXT DEFAULT 'user' CHECK (created_by IN ('user', 'agent')),
    created_at      TIMESTAMPTZ DEFAULT NOW(),
    updated_at      TIMESTAMPTZ DEFAULT NOW(),
    last_run_at     TIMESTAMPTZ,
    last_run_status TEXT CHECK (last_run_status IN ('success', 'error', 'skipped', 'aborted')),
    last_run_error  TEXT,
    run_count       INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cron_jobs_status ON cron_jobs(status);

-- One row per day, written by the agent at day end
CREATE TABLE IF NOT EXISTS daily_summaries (
    id           SERIAL PRIMARY KEY,
    summary_date DATE UNIQUE NOT NULL,
    content      TEXT NOT NULL,
    created_at   TIMESTAMPTZ DEFAULT NOW(),
    updated_at   TIMESTAMPTZ DEFAULT NOW()
);
`
