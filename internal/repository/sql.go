package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// dialect holds the statements that differ between SQL engines.
type dialect struct {
	name    string
	schema  string
	selectQ string
	upsertQ string
}

// SQLBackend stores each location as one row of the iap_records table.
// Each write is a single upsert statement, so readers never observe a
// partially written record.
type SQLBackend struct {
	db      *sql.DB
	dialect dialect
}

func newSQLBackend(ctx context.Context, db *sql.DB, d dialect) (*SQLBackend, error) {
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		return nil, fmt.Errorf("failed to create %s tables: %w", d.name, err)
	}
	return &SQLBackend{db: db, dialect: d}, nil
}

// Read returns the payload stored for location.
func (b *SQLBackend) Read(ctx context.Context, location string) ([]byte, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx, b.dialect.selectQ, location).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s from %s: %w", location, b.dialect.name, err)
	}
	return payload, nil
}

// Write upserts the payload for location.
func (b *SQLBackend) Write(ctx context.Context, location string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := b.db.ExecContext(ctx, b.dialect.upsertQ, location, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write %s to %s: %w", location, b.dialect.name, err)
	}
	return nil
}

// GetStats returns record counts and the last write time.
func (b *SQLBackend) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"engine": b.dialect.name}

	var count int64
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM iap_records").Scan(&count); err != nil {
		return nil, err
	}
	stats["records"] = count

	var lastWrite sql.NullTime
	if err := b.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM iap_records").Scan(&lastWrite); err == nil && lastWrite.Valid {
		stats["last_write"] = lastWrite.Time
	}

	return stats, nil
}

// Close closes the database connection.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}

var _ Backend = (*SQLBackend)(nil)
