package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS persons (
		id VARCHAR(64) PRIMARY KEY,
		seq INT NOT NULL,
		display_name VARCHAR(512) NOT NULL,
		directory_ref VARCHAR(512) NOT NULL,
		class TINYINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS person_addresses (
		address VARCHAR(255) PRIMARY KEY,
		person_id VARCHAR(64) NOT NULL,
		position INT NOT NULL,
		INDEX idx_person_addresses_person (person_id)
	)`,
	`CREATE TABLE IF NOT EXISTS aliases (
		absorbed VARCHAR(64) PRIMARY KEY,
		survivor VARCHAR(64) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		person_id VARCHAR(64) PRIMARY KEY,
		message_count INT NOT NULL,
		first_seen VARCHAR(40) NOT NULL,
		last_seen VARCHAR(40) NOT NULL,
		mailing_lists TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		from_id VARCHAR(64) NOT NULL,
		to_id VARCHAR(64) NOT NULL,
		interaction VARCHAR(32) NOT NULL,
		weight INT NOT NULL,
		first_seen VARCHAR(40) NOT NULL,
		last_seen VARCHAR(40) NOT NULL,
		PRIMARY KEY (from_id, to_id, interaction)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_meta (
		name VARCHAR(64) PRIMARY KEY,
		value VARCHAR(255) NOT NULL
	)`,
}

// MySQLStore is a MySQL implementation of the snapshot repository
type MySQLStore struct {
	sqlStore
}

// NewMySQLStore connects to MySQL and creates the snapshot tables
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	if err := createSchema(db, mysqlSchema); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to MySQL snapshot store")
	return &MySQLStore{sqlStore{db: db, backend: "mysql", logger: logger}}, nil
}
