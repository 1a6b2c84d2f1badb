// Package container provides dependency injection and lifecycle management
// for the procurement service.
package container

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement/internal/domain/entity"
)

// Config holds all configuration for the Container.
type Config struct {
	Database DatabaseConfig
	Auth     AuthConfig
	Approval ApprovalConfig
	Storage  StorageConfig
	Server   ServerConfig
	Worker   WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite3 or postgres
	Driver string

	// DSN is the postgres connection string
	DSN string

	// Path to the SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds token and password settings.
type AuthConfig struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// BcryptCost of 0 selects bcrypt.DefaultCost
	BcryptCost int

	// AdminEmail, when set, is ensured to be an active administrator at startup
	AdminEmail    string
	AdminPassword string
}

// ApprovalConfig holds per-role approval authority.
type ApprovalConfig struct {
	// Limits maps a role to the largest total it may approve. Negative is unlimited.
	Limits map[entity.Role]decimal.Decimal

	// MaxAttempts bounds optimistic-concurrency retries per command
	MaxAttempts  int
	RetryBackoff time.Duration
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// BaseDir is where generated reports are archived
	BaseDir string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Mode            string
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	FulfillmentEnabled      bool
	FulfillmentPollInterval time.Duration
	FulfillmentBatchSize    int
	FulfillmentTimeout      time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			Path:            "data/procurement.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: AuthConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Approval: ApprovalConfig{
			Limits: map[entity.Role]decimal.Decimal{
				entity.RoleProcurementManager: decimal.NewFromInt(10000),
				entity.RoleFinanceApprover:    decimal.NewFromInt(50000),
				entity.RoleDirector:           decimal.NewFromInt(-1),
				entity.RoleAdmin:              decimal.NewFromInt(-1),
			},
			MaxAttempts:  3,
			RetryBackoff: 10 * time.Millisecond,
		},
		Storage: StorageConfig{
			BaseDir: "data/files",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Mode:            "release",
		},
		Worker: WorkerConfig{
			FulfillmentEnabled:      true,
			FulfillmentPollInterval: 30 * time.Second,
			FulfillmentBatchSize:    50,
			FulfillmentTimeout:      20 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite3")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("auth token ttls must be positive")
	}
	if c.Auth.AdminEmail != "" && c.Auth.AdminPassword == "" {
		return fmt.Errorf("admin password is required with admin email")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	return nil
}
