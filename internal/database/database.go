package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New opens or creates the SQLite database at the given path.
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ SQLite database connected")

	return &DB{db}, nil
}

// Initialize creates all required tables. Safe to call on every start.
func (db *DB) Initialize() error {
	log.Println("🔍 Checking database schema...")

	schema := []string{
		`CREATE TABLE IF NOT EXISTS actors (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			persona         TEXT NOT NULL DEFAULT '',
			custom_behavior TEXT NOT NULL DEFAULT '',
			voice_id        TEXT NOT NULL DEFAULT '',
			avatar          TEXT NOT NULL DEFAULT '',
			kind            TEXT NOT NULL DEFAULT 'individual',
			member_ids      TEXT NOT NULL DEFAULT '[]',
			created_at      TIMESTAMP NOT NULL,
			updated_at      TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_profile (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			name    TEXT NOT NULL DEFAULT '',
			persona TEXT NOT NULL DEFAULT '',
			avatar  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			actor_id    TEXT NOT NULL,
			sender_id   TEXT NOT NULL DEFAULT '',
			role        TEXT NOT NULL,
			kind        TEXT NOT NULL DEFAULT 'text',
			content     TEXT NOT NULL DEFAULT '',
			red_amount  REAL,
			red_message TEXT,
			timestamp   TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_actor_time ON messages (actor_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS character_memories (
			actor_id TEXT PRIMARY KEY,
			content  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS memory_tables (
			actor_id   TEXT PRIMARY KEY,
			content    TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emojis (
			tag       TEXT PRIMARY KEY,
			meaning   TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS api_configs (
			id                    TEXT PRIMARY KEY,
			name                  TEXT NOT NULL DEFAULT '',
			base_url              TEXT NOT NULL DEFAULT '',
			api_keys              TEXT NOT NULL DEFAULT '[]',
			model                 TEXT NOT NULL DEFAULT '',
			secondary_model       TEXT NOT NULL DEFAULT '',
			context_message_count INTEGER NOT NULL DEFAULT 0,
			timeout_ms            INTEGER NOT NULL DEFAULT 0,
			is_active             BOOLEAN NOT NULL DEFAULT FALSE,
			created_at            TIMESTAMP NOT NULL,
			updated_at            TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_blobs (
			sync_key   TEXT PRIMARY KEY,
			data       TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS call_stats (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			config_id TEXT NOT NULL,
			key_index INTEGER NOT NULL,
			key_hash  TEXT NOT NULL,
			success   BOOLEAN NOT NULL,
			timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_stats_time ON call_stats (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_call_stats_key ON call_stats (config_id, key_index)`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Println("✅ Database initialized successfully")
	return nil
}
