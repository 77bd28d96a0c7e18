package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dynaflow/engine/common/config"
	"github.com/dynaflow/engine/common/logger"
)

// DB wraps database/sql over the single-file SQLite ledger
type DB struct {
	*sql.DB
	log *logger.Logger
}

// New opens the ledger database
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		cfg.Database.Path,
		cfg.Database.BusyTimeout.Milliseconds(),
	)

	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool.SetMaxOpenConns(cfg.Database.MaxConns)

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database opened", "path", cfg.Database.Path)

	return &DB{
		DB:  pool,
		log: log,
	}, nil
}

// Migrate creates the ledger schema if it does not exist
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflow_executions (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_node_id TEXT,
			state_data TEXT NOT NULL,
			graph_json TEXT NOT NULL,
			parent_execution_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS node_executions (
			id TEXT PRIMARY KEY,
			workflow_execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			node_type TEXT NOT NULL,
			node_label TEXT,
			status TEXT NOT NULL,
			request_data TEXT,
			response_data TEXT,
			error_message TEXT,
			execution_time_ms INTEGER,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			FOREIGN KEY (workflow_execution_id) REFERENCES workflow_executions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_node_executions_workflow
			ON node_executions(workflow_execution_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS form_responses (
			id TEXT PRIMARY KEY,
			workflow_execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			form_data TEXT NOT NULL,
			submitted_at TEXT NOT NULL,
			FOREIGN KEY (workflow_execution_id) REFERENCES workflow_executions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS service_metrics (
			node_id TEXT PRIMARY KEY,
			total_calls INTEGER NOT NULL DEFAULT 0,
			successes INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			avg_time_ms REAL NOT NULL DEFAULT 0,
			last_called TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS flows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (name, version)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	db.log.Info("database schema ready")
	return nil
}

// Close closes the database
func (db *DB) Close() {
	db.log.Info("closing database")
	db.DB.Close()
}

// Health checks database health
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}
