// Package cache provides the SQLite-backed snapshot store that lets the UI
// render the last known document list before the first remote load completes.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/laguz/internal/models"
)

// keyPrefix scopes snapshots by identity so documents cached under one
// identity are never exposed under another.
const keyPrefix = "laguz/docs/"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	documents  TEXT NOT NULL DEFAULT '[]',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with snapshot operations.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the cache database and applies the schema.
func Open(dsn string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	return &DB{conn: conn, logger: logger}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SnapshotKey returns the row key for an identity.
func SnapshotKey(identity string) string {
	return keyPrefix + identity
}

// Load returns the cached document list for identity, or (nil, false) when
// no usable snapshot exists. Corrupt rows are treated as absent; the cache
// is only ever a convenience copy of remote state.
func (db *DB) Load(identity string) ([]models.Document, bool) {
	var raw string
	err := db.conn.QueryRow(`SELECT documents FROM snapshots WHERE key = ?`, SnapshotKey(identity)).Scan(&raw)
	if err != nil {
		return nil, false
	}
	var docs []models.Document
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		db.logger.Warn("cache: corrupt snapshot, ignoring", slog.String("identity", identity), slog.String("error", err.Error()))
		return nil, false
	}
	return docs, true
}

// Store replaces the full snapshot for identity. Last writer wins; partial
// merges never happen.
func (db *DB) Store(identity string, docs []models.Document) error {
	if docs == nil {
		docs = []models.Document{}
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("cache: encode snapshot: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO snapshots (key, documents, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			documents  = excluded.documents,
			updated_at = excluded.updated_at
	`, SnapshotKey(identity), string(raw), time.Now())
	if err != nil {
		return fmt.Errorf("cache: store snapshot: %w", err)
	}
	return nil
}
