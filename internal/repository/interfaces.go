package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when nothing was ever written at a location.
var ErrNotFound = errors.New("record not found")

// Backend is a byte-level store addressed by location name.
// Write must be all-or-nothing: a failed or interrupted write leaves the
// previous content (or nothing) visible to the next Read.
type Backend interface {
	// Read returns the full content stored at location, or ErrNotFound.
	Read(ctx context.Context, location string) ([]byte, error)

	// Write replaces the content stored at location.
	Write(ctx context.Context, location string, data []byte) error

	// Close releases the backend's resources.
	Close() error
}

// Describer is implemented by backends that can report diagnostics.
type Describer interface {
	// GetStats returns statistics about the backend.
	GetStats(ctx context.Context) (map[string]interface{}, error)
}
