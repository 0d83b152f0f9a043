package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		display_name TEXT NOT NULL,
		directory_ref TEXT NOT NULL,
		class INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS person_addresses (
		address TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_person_addresses_person ON person_addresses(person_id)`,
	`CREATE TABLE IF NOT EXISTS aliases (
		absorbed TEXT PRIMARY KEY,
		survivor TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		person_id TEXT PRIMARY KEY,
		message_count INTEGER NOT NULL,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		mailing_lists TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		interaction TEXT NOT NULL,
		weight INTEGER NOT NULL,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, interaction)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_meta (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// SQLiteStore is a SQLite implementation of the snapshot repository
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens (or creates) a SQLite snapshot database
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one writer at a time keeps SQLite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := createSchema(db, sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened SQLite snapshot store", zap.String("path", dbPath))
	return &SQLiteStore{sqlStore{db: db, backend: "sqlite", logger: logger}}, nil
}
