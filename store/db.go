// Package store provides the persistence layer (C2 DataStore): encrypted
// integration credentials, per-tenant engine status, and append-only
// execution/research/activity logs, backed by SQLite through sqlx.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlx database connection shared by every store.
type DB struct {
	*sqlx.DB
}

// NewDB opens (creating if necessary) the SQLite database at databasePath
// and applies the schema migration.
func NewDB(databasePath string) (*DB, error) {
	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create database directory: %w", err)
	}

	conn, err := sqlx.Connect("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	log.Info().Str("path", databasePath).Msg("store: connected to database")

	wrapper := &DB{conn}
	if err := wrapper.migrate(); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return wrapper, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS integrations (
		tenant             TEXT NOT NULL,
		provider           TEXT NOT NULL,
		subtype            TEXT NOT NULL DEFAULT '',
		enabled            INTEGER NOT NULL DEFAULT 0,
		encrypted_api_key  TEXT NOT NULL DEFAULT '',
		encrypted_secret   TEXT NOT NULL DEFAULT '',
		updated_at         DATETIME NOT NULL,
		PRIMARY KEY (tenant, provider, subtype)
	);

	CREATE TABLE IF NOT EXISTS engine_status (
		tenant       TEXT NOT NULL,
		engine_type  TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		active       INTEGER NOT NULL DEFAULT 0,
		config_json  TEXT NOT NULL DEFAULT '{}',
		updated_at   DATETIME NOT NULL,
		PRIMARY KEY (tenant, engine_type, symbol)
	);

	CREATE TABLE IF NOT EXISTS execution_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant      TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		order_id    TEXT NOT NULL,
		side        TEXT NOT NULL,
		quantity    TEXT NOT NULL,
		price       TEXT NOT NULL,
		status      TEXT NOT NULL,
		reason      TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_execution_logs_tenant ON execution_logs(tenant, created_at DESC);

	CREATE TABLE IF NOT EXISTS research_logs (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant              TEXT NOT NULL,
		symbol              TEXT NOT NULL,
		signal              TEXT NOT NULL,
		accuracy            REAL NOT NULL,
		imbalance           REAL NOT NULL,
		recommended_action  TEXT NOT NULL,
		created_at          DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_research_logs_tenant ON research_logs(tenant, created_at DESC);

	CREATE TABLE IF NOT EXISTS activity_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant      TEXT NOT NULL,
		action      TEXT NOT NULL,
		detail      TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_log_tenant ON activity_log(tenant, created_at DESC);

	CREATE TABLE IF NOT EXISTS notifications (
		id          TEXT PRIMARY KEY,
		tenant      TEXT NOT NULL,
		type        TEXT NOT NULL,
		title       TEXT NOT NULL,
		message     TEXT NOT NULL,
		metadata    TEXT NOT NULL DEFAULT '{}',
		is_read     INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_tenant ON notifications(tenant, created_at DESC);
	`
	_, err := db.Exec(schema)
	return err
}
