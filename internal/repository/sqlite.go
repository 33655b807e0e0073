package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

const (
	sqliteSchema = `
	CREATE TABLE IF NOT EXISTS iap_records (
		location TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	sqliteSelect = `SELECT payload FROM iap_records WHERE location = ?`

	sqliteUpsert = `
		INSERT INTO iap_records (location, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(location) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`
)

var sqliteDialect = dialect{
	name:    "sqlite",
	schema:  sqliteSchema,
	selectQ: sqliteSelect,
	upsertQ: sqliteUpsert,
}

// NewSQLiteBackend opens (or creates) a SQLite database at dbPath.
func NewSQLiteBackend(dbPath string) (*SQLBackend, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create SQLite dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	b, err := newSQLBackend(context.Background(), db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	glog.Infof("[SQLiteBackend] Initialized with database: %s", dbPath)
	return b, nil
}
