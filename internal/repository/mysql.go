package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/glog"

	_ "github.com/go-sql-driver/mysql"
)

const (
	mysqlSchema = `
	CREATE TABLE IF NOT EXISTS iap_records (
		location VARCHAR(255) NOT NULL PRIMARY KEY,
		payload LONGBLOB NOT NULL,
		updated_at DATETIME(6) NOT NULL
	)`

	mysqlSelect = `SELECT payload FROM iap_records WHERE location = ?`

	mysqlUpsert = `
		INSERT INTO iap_records (location, payload, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			payload = VALUES(payload),
			updated_at = VALUES(updated_at)`
)

var mysqlDialect = dialect{
	name:    "mysql",
	schema:  mysqlSchema,
	selectQ: mysqlSelect,
	upsertQ: mysqlUpsert,
}

// NewMySQLBackend connects to MySQL using a go-sql-driver DSN.
func NewMySQLBackend(dsn string) (*SQLBackend, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	b, err := newSQLBackend(ctx, db, mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	glog.Infof("[MySQLBackend] Initialized")
	return b, nil
}
