package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Storage  StorageConfig
	Platform PlatformConfig
	Purchase PurchaseConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	// RequestWait bounds how long an endpoint waits for a platform result
	// before answering 202 with the request still pending.
	RequestWait time.Duration `envconfig:"SERVER_REQUEST_WAIT" default:"60s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"iap-coordinator"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Debug       bool     `envconfig:"APP_DEBUG" default:"false"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS" default:""`  // empty disables key checks
	AdminKey    string   `envconfig:"ADMIN_KEY" default:""` // required for /admin routes
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// StorageConfig selects where the purchased-products record lives.
type StorageConfig struct {
	Type     string `envconfig:"STORAGE_TYPE" default:"file"` // file, sqlite, postgres, mysql or redis
	Location string `envconfig:"STORAGE_LOCATION" default:"purchased.json"`
	Dir      string `envconfig:"STORAGE_DIR" default:"./data"`
	Path     string `envconfig:"STORAGE_SQLITE_PATH" default:"./data/iap.db"`
	// PostgreSQL / MySQL settings
	Host     string `envconfig:"STORAGE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STORAGE_DB_PORT" default:"0"`
	Name     string `envconfig:"STORAGE_DB_NAME" default:"iap"`
	User     string `envconfig:"STORAGE_DB_USER" default:""`
	Password string `envconfig:"STORAGE_DB_PASS" default:""`
	SSLMode  string `envconfig:"STORAGE_DB_SSLMODE" default:"disable"`
	// Redis settings
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_KEY_PREFIX" default:"iap:records"`
}

// PlatformConfig selects and configures the platform purchase service binding.
type PlatformConfig struct {
	Mode            string `envconfig:"PLATFORM_MODE" default:"sandbox"` // nats or sandbox
	PaymentsEnabled bool   `envconfig:"PAYMENTS_ENABLED" default:"true"`

	NATSHost      string `envconfig:"NATS_HOST" default:"localhost"`
	NATSPort      int    `envconfig:"NATS_PORT" default:"4222"`
	NATSUsername  string `envconfig:"NATS_USERNAME" default:""`
	NATSPassword  string `envconfig:"NATS_PASSWORD" default:""`
	SubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"iap"`

	CatalogMode    string        `envconfig:"CATALOG_MODE" default:"platform"` // platform or http
	CatalogURL     string        `envconfig:"CATALOG_URL" default:""`
	CatalogTimeout time.Duration `envconfig:"CATALOG_TIMEOUT" default:"10s"`

	StorefrontHost string        `envconfig:"STOREFRONT_HOST" default:"appstore.com"`
	ProbeTimeout   time.Duration `envconfig:"STOREFRONT_PROBE_TIMEOUT" default:"3s"`
	ProbeDisabled  bool          `envconfig:"STOREFRONT_PROBE_DISABLED" default:"false"`

	// Sandbox settings
	SandboxProducts []string      `envconfig:"SANDBOX_PRODUCTS" default:"com.example.premium=4.99,com.example.coins=0.99"`
	SandboxDelay    time.Duration `envconfig:"SANDBOX_DELAY" default:"500ms"`
}

// PurchaseConfig holds coordinator policy settings.
type PurchaseConfig struct {
	ShortCircuitOwned bool          `envconfig:"PURCHASE_SHORT_CIRCUIT_OWNED" default:"false"`
	PendingTTL        time.Duration `envconfig:"PURCHASE_PENDING_TTL" default:"0"` // 0 keeps pending purchases forever
	SweepInterval     time.Duration `envconfig:"PURCHASE_SWEEP_INTERVAL" default:"1m"`
	CatalogCacheTTL   time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"0"` // 0 caches for the process lifetime
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StorageConfig) PostgresDSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	user := s.User
	if user == "" {
		user = "postgres"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, s.Password, s.Host, port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StorageConfig) MySQLDSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	user := s.User
	if user == "" {
		user = "root"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		user, s.Password, s.Host, port, s.Name)
}

// RedisAddress returns the Redis address in host:port format.
func (s *StorageConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", s.RedisHost, s.RedisPort)
}

// NATSURL returns the NATS server URL.
func (p *PlatformConfig) NATSURL() string {
	return fmt.Sprintf("nats://%s:%d", p.NATSHost, p.NATSPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate checks option combinations envconfig cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Type) {
	case "file", "sqlite", "postgres", "postgresql", "mysql", "redis":
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type)
	}
	switch strings.ToLower(c.Platform.Mode) {
	case "nats", "sandbox":
	default:
		return fmt.Errorf("unknown PLATFORM_MODE %q", c.Platform.Mode)
	}
	switch strings.ToLower(c.Platform.CatalogMode) {
	case "platform":
	case "http":
		if c.Platform.CatalogURL == "" {
			return fmt.Errorf("CATALOG_URL is required when CATALOG_MODE=http")
		}
	default:
		return fmt.Errorf("unknown CATALOG_MODE %q", c.Platform.CatalogMode)
	}
	if c.Purchase.PendingTTL < 0 {
		return fmt.Errorf("PURCHASE_PENDING_TTL must not be negative")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
