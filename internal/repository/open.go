package repository

import (
	"fmt"
	"strings"

	"iap-coordinator/internal/config"
)

// Open creates the backend selected by cfg.Type.
func Open(cfg *config.StorageConfig) (Backend, error) {
	switch strings.ToLower(cfg.Type) {
	case "file", "":
		return NewFileBackend(cfg.Dir)
	case "sqlite":
		return NewSQLiteBackend(cfg.Path)
	case "postgres", "postgresql":
		return NewPostgresBackend(cfg.PostgresDSN())
	case "mysql":
		return NewMySQLBackend(cfg.MySQLDSN())
	case "redis":
		return NewRedisBackend(RedisConfig{
			Addr:      cfg.RedisAddress(),
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
		})
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
