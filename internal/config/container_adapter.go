package config

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement/internal/container"
	"github.com/garyjia/procurement/internal/domain/entity"
)

// ToContainerConfig converts the application Config to a container.Config.
// Call it on a validated Config.
func (c *Config) ToContainerConfig() *container.Config {
	parsed, _ := c.Approval.parseLimits()
	limits := make(map[entity.Role]decimal.Decimal, len(parsed))
	for role, amount := range parsed {
		limits[entity.Role(role)] = amount
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			DSN:             c.Database.DSN,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Auth: container.AuthConfig{
			JWTSecret:  c.Auth.JWTSecret,
			AccessTTL:  c.Auth.AccessTTL,
			RefreshTTL: c.Auth.RefreshTTL,
			BcryptCost: c.Auth.BcryptCost,

			AdminEmail:    c.Auth.AdminEmail,
			AdminPassword: c.Auth.AdminPassword,
		},
		Approval: container.ApprovalConfig{
			Limits:       limits,
			MaxAttempts:  c.Approval.MaxAttempts,
			RetryBackoff: c.Approval.RetryBackoff,
		},
		Storage: container.StorageConfig{
			BaseDir: c.Storage.BaseDir,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
			Mode:            c.Server.Mode,
		},
		Worker: container.WorkerConfig{
			FulfillmentEnabled:      c.Worker.FulfillmentEnabled,
			FulfillmentPollInterval: c.Worker.FulfillmentPollInterval,
			FulfillmentBatchSize:    c.Worker.FulfillmentBatchSize,
			FulfillmentTimeout:      c.Worker.FulfillmentTimeout,
		},
	}
}
