package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/procurement/internal/application/dispatcher"
	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/application/service"
	"github.com/garyjia/procurement/internal/application/workflow"
	"github.com/garyjia/procurement/internal/infrastructure/auth"
	"github.com/garyjia/procurement/internal/infrastructure/authority"
	"github.com/garyjia/procurement/internal/infrastructure/persistence/repository"
	"github.com/garyjia/procurement/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/procurement/internal/infrastructure/storage"
	"github.com/garyjia/procurement/internal/infrastructure/worker"
	"github.com/garyjia/procurement/migrations"
	"github.com/garyjia/procurement/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *sqldb.TxManager
}

// RepositoryBundle groups all repositories.
type RepositoryBundle struct {
	Orders    *repository.OrderRepository
	History   *repository.HistoryRepository
	Users     *repository.UserRepository
	Suppliers *repository.SupplierRepository
	Shipments *repository.ShipmentRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Users         service.UserService
	Suppliers     service.SupplierService
	Orders        service.PurchaseOrderService
	Shipments     service.ShipmentService
	Reports       service.ReportService
	Notifications service.NotificationService
}

// SecurityBundle holds authentication components.
type SecurityBundle struct {
	Tokens    *auth.JWTIssuer
	Hasher    *auth.BcryptHasher
	Authority *authority.Resolver
}

// ServiceDeps holds dependencies for ProvideServices.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Security   *SecurityBundle
	Storage    port.FileStorage
	Dispatcher dispatcher.Dispatcher
	Approval   *ApprovalConfig
	Logger     *zap.Logger
}

// ProvideDatabase opens the connection pool and applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	if cfg.Driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(database.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	fsys, err := migrations.For(db.Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := database.NewMigrator(db, logger).Run(ctx, fsys); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:        db,
		TxManager: sqldb.NewTxManager(db, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &RepositoryBundle{
		Orders:    repository.NewOrderRepository(db, logger),
		History:   repository.NewHistoryRepository(db, logger),
		Users:     repository.NewUserRepository(db, logger),
		Suppliers: repository.NewSupplierRepository(db, logger),
		Shipments: repository.NewShipmentRepository(db, logger),
	}, nil
}

// ProvideSecurity creates the token issuer, password hasher and authority resolver.
func ProvideSecurity(cfg *AuthConfig, approval *ApprovalConfig, users *repository.UserRepository, logger *zap.Logger) (*SecurityBundle, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &SecurityBundle{
		Tokens:    auth.NewJWTIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL),
		Hasher:    auth.NewBcryptHasher(cfg.BcryptCost),
		Authority: authority.NewResolver(users, approval.Limits, logger.Named("authority")),
	}, nil
}

// ProvideStorage creates the local file storage rooted at cfg.BaseDir.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.FileStorage, error) {
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return storage.NewLocalFileStorage(cfg.BaseDir, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(NewLoggerAdapter(logger.Named("dispatcher"))))
}

// ProvideServices creates all application services and subscribes event handlers.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.Security == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	log := NewLoggerAdapter(deps.Logger)
	repos := deps.Repos

	var opts []service.OrderServiceOption
	if deps.Approval != nil {
		if deps.Approval.MaxAttempts > 0 {
			opts = append(opts, service.WithMaxAttempts(deps.Approval.MaxAttempts))
		}
		if deps.Approval.RetryBackoff > 0 {
			opts = append(opts, service.WithRetryBackoff(deps.Approval.RetryBackoff))
		}
	}

	orders := service.NewPurchaseOrderService(
		repos.Orders,
		repos.History,
		repos.Suppliers,
		repos.Shipments,
		workflow.NewEngine(deps.Security.Authority),
		deps.TxManager,
		deps.Dispatcher,
		log,
		opts...,
	)

	bundle := &ServiceBundle{
		Users:         service.NewUserService(repos.Users, deps.Security.Hasher, deps.Security.Tokens, log),
		Suppliers:     service.NewSupplierService(repos.Suppliers, log),
		Orders:        orders,
		Shipments:     service.NewShipmentService(repos.Shipments, repos.Orders, deps.TxManager, deps.Dispatcher, log),
		Reports:       service.NewReportService(repos.Orders, repos.Suppliers, deps.Storage, log),
		Notifications: service.NewNotificationService(repos.Users, log),
	}

	service.RegisterEventHandlers(deps.Dispatcher, bundle.Notifications, bundle.Orders, log)

	return bundle, nil
}

// ProvideWorkers registers the background workers. They are started by the caller.
func ProvideWorkers(cfg *WorkerConfig, repos *RepositoryBundle, services *ServiceBundle, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger.Named("workers"))

	if cfg.FulfillmentEnabled {
		wcfg := worker.DefaultFulfillmentWorkerConfig()
		if cfg.FulfillmentPollInterval > 0 {
			wcfg.PollInterval = cfg.FulfillmentPollInterval
		}
		if cfg.FulfillmentBatchSize > 0 {
			wcfg.BatchSize = cfg.FulfillmentBatchSize
		}
		if cfg.FulfillmentTimeout > 0 {
			wcfg.Timeout = cfg.FulfillmentTimeout
		}
		manager.Register(worker.NewFulfillmentWorker(wcfg, repos.Shipments, services.Orders, logger.Named("fulfillment")))
	}

	return manager
}
