package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// FileBackend stores each location as a file under a base directory.
// Writes go to a temporary sibling that is synced and renamed into place.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a file backend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	glog.Infof("[FileBackend] Initialized with directory: %s", dir)
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(location string) (string, error) {
	if location == "" || strings.ContainsAny(location, `/\`) || location == "." || location == ".." {
		return "", fmt.Errorf("invalid storage location %q", location)
	}
	return filepath.Join(b.dir, location), nil
}

// Read returns the content of the file for location.
func (b *FileBackend) Read(ctx context.Context, location string) ([]byte, error) {
	p, err := b.path(location)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}

// Write atomically replaces the file for location.
func (b *FileBackend) Write(ctx context.Context, location string, data []byte) error {
	p, err := b.path(location)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, "."+location+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", location, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", location, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", location, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", location, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("failed to replace %s: %w", location, err)
	}
	committed = true

	syncDir(b.dir)
	return nil
}

// syncDir flushes the directory entry so the rename survives a crash.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		glog.V(2).Infof("[FileBackend] Directory sync failed: %v", err)
	}
}

// GetStats returns the storage directory and the number of records in it.
func (b *FileBackend) GetStats(ctx context.Context) (map[string]interface{}, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	records := 0
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			records++
		}
	}
	return map[string]interface{}{
		"dir":     b.dir,
		"records": records,
	}, nil
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error {
	return nil
}

var _ Backend = (*FileBackend)(nil)
