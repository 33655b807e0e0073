package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, 60*time.Second, cfg.Server.RequestWait)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "purchased.json", cfg.Storage.Location)
	assert.Equal(t, "sandbox", cfg.Platform.Mode)
	assert.True(t, cfg.Platform.PaymentsEnabled)
	assert.Equal(t, []string{"com.example.premium=4.99", "com.example.coins=0.99"}, cfg.Platform.SandboxProducts)
	assert.False(t, cfg.Purchase.ShortCircuitOwned)
	assert.Zero(t, cfg.Purchase.PendingTTL)
	assert.True(t, cfg.App.IsDevelopment())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_TYPE", "redis")
	t.Setenv("PLATFORM_MODE", "nats")
	t.Setenv("NATS_HOST", "nats.internal")
	t.Setenv("API_KEYS", "k1,k2")
	t.Setenv("PURCHASE_PENDING_TTL", "10m")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "nats://nats.internal:4222", cfg.Platform.NATSURL())
	assert.Equal(t, []string{"k1", "k2"}, cfg.App.APIKeys)
	assert.Equal(t, 10*time.Minute, cfg.Purchase.PendingTTL)
	assert.True(t, cfg.App.IsProduction())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"storage type", map[string]string{"STORAGE_TYPE": "mongodb"}},
		{"platform mode", map[string]string{"PLATFORM_MODE": "carrier-pigeon"}},
		{"catalog mode", map[string]string{"CATALOG_MODE": "ftp"}},
		{"http catalog without url", map[string]string{"CATALOG_MODE": "http"}},
		{"negative ttl", map[string]string{"PURCHASE_PENDING_TTL": "-1s"}},
		{"malformed duration", map[string]string{"SERVER_REQUEST_WAIT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestStorageDSNs(t *testing.T) {
	s := StorageConfig{Host: "db", Name: "iap", Password: "pw", SSLMode: "disable", RedisHost: "cache", RedisPort: 6380}

	assert.Equal(t, "postgres://postgres:pw@db:5432/iap?sslmode=disable", s.PostgresDSN())
	assert.Equal(t, "root:pw@tcp(db:3306)/iap?parseTime=true", s.MySQLDSN())
	assert.Equal(t, "cache:6380", s.RedisAddress())

	s.User = "svc"
	s.Port = 6543
	assert.Equal(t, "postgres://svc:pw@db:6543/iap?sslmode=disable", s.PostgresDSN())
}
